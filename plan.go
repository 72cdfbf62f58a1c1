package grove

import (
	"fmt"
	"reflect"
	"runtime"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
	"unsafe"
)

// tagKey is the struct tag read by the plan compiler. Its value is a binding
// name followed by options:
//
//	Logger  Logger `inject:""`
//	Primary DB     `inject:"primary"`
//	Cache   Cache  `inject:",optional"`
//	Clock   Clock  `inject:",setter"`
const tagKey = "inject"

// methodPrefix selects the methods called during injection.
const methodPrefix = "Inject"

// In is embedded in a struct to mark it as a parameter object. When a
// constructor or Inject method takes a parameter object, each exported field
// is resolved on its own and may carry an inject tag:
//
//	type ServiceParams struct {
//		grove.In
//
//		Logger Logger
//		Cache  Cache `inject:"redis,optional"`
//	}
//
//	func NewService(p ServiceParams) *Service
type In struct{}

var (
	inType        = reflect.TypeOf(In{})
	errorType     = reflect.TypeOf((*error)(nil)).Elem()
	containerType = reflect.TypeOf((*Container)(nil))
)

// site is one injectable struct field.
type site struct {
	index     []int
	typ       reflect.Type
	declaring reflect.Type
	member    string
	name      string
	optional  bool
	setter    reflect.Value // method func taking the declaring struct pointer
	setterErr bool
}

// plan is the compiled injection recipe for one dynamic type. It is applied
// in order: fields, then setter properties, then Inject methods.
type plan struct {
	fields     []site
	properties []site
	methods    []*invoker
}

type param struct {
	typ      reflect.Type
	isObject bool // typ embeds In
	object   []site
}

// invoker calls a constructor or Inject method with resolved arguments.
type invoker struct {
	fn         reflect.Value
	declaring  reflect.Type
	member     string
	params     []param
	method     bool
	returnsErr bool
}

type planEntry struct {
	plan *plan
	err  error
}

// planCache memoizes compiled plans by type. A root container and all of its
// children share one cache. Compilation failures are cached too.
type planCache struct {
	mu    sync.RWMutex
	plans map[reflect.Type]*planEntry
}

func newPlanCache() *planCache {
	return &planCache{plans: make(map[reflect.Type]*planEntry)}
}

func (pc *planCache) get(t reflect.Type) (*plan, error) {
	pc.mu.RLock()
	e, ok := pc.plans[t]
	pc.mu.RUnlock()
	if ok {
		return e.plan, e.err
	}

	p, err := compilePlan(t)

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if e, ok := pc.plans[t]; ok {
		return e.plan, e.err
	}
	pc.plans[t] = &planEntry{plan: p, err: err}
	return p, err
}

// inject applies the plan for target's dynamic type. Fields and properties
// are only injected through a pointer to a struct; other values get their
// Inject methods called.
func (pc *planCache) inject(call *Call, target any) error {
	p, err := pc.get(reflect.TypeOf(target))
	if err != nil {
		return err
	}
	rv := reflect.ValueOf(target)
	if rv.Kind() == reflect.Pointer && rv.IsNil() {
		return nil
	}
	return p.apply(call, rv)
}

func (pc *planCache) constructor(fn reflect.Value) (*invoker, error) {
	typ := fn.Type()
	member := typ.String()
	if f := runtime.FuncForPC(fn.Pointer()); f != nil {
		member = f.Name()
	}
	inv, err := compileInvoker(fn, typ, typ.Out(0), member, false)
	if err != nil {
		return nil, err
	}
	inv.returnsErr = typ.NumOut() == 2
	return inv, nil
}

// ---------------------------------------------------------------------------
// Compilation
// ---------------------------------------------------------------------------

func compilePlan(t reflect.Type) (*plan, error) {
	p := &plan{}
	if t == containerType {
		return p, nil
	}

	if t.Kind() == reflect.Pointer && t.Elem().Kind() == reflect.Struct {
		if err := collectSites(p, t.Elem(), nil, make(map[reflect.Type]bool)); err != nil {
			return nil, err
		}
	}

	for i := range t.NumMethod() {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, methodPrefix) {
			continue
		}
		mt := m.Type
		switch {
		case mt.NumOut() > 1, mt.NumOut() == 1 && mt.Out(0) != errorType:
			return nil, configErr(t, "method %s must return nothing or error", m.Name)
		}
		inv, err := compileInvoker(m.Func, mt, t, m.Name, true)
		if err != nil {
			return nil, err
		}
		inv.returnsErr = mt.NumOut() == 1
		p.methods = append(p.methods, inv)
	}
	return p, nil
}

// collectSites walks the fields declared by st and, recursively, by the
// structs it embeds by value.
func collectSites(p *plan, st reflect.Type, prefix []int, visited map[reflect.Type]bool) error {
	if visited[st] {
		return nil
	}
	visited[st] = true

	for i := range st.NumField() {
		f := st.Field(i)
		index := append(slices.Clone(prefix), i)

		raw, tagged := f.Tag.Lookup(tagKey)
		if !tagged {
			if f.Anonymous && f.Type.Kind() == reflect.Struct && f.Type != inType {
				if err := collectSites(p, f.Type, index, visited); err != nil {
					return err
				}
			}
			continue
		}

		name, optional, setter, err := parseTag(raw)
		if err != nil {
			return configErr(st, "field %s: %v", f.Name, err)
		}
		s := site{
			index:     index,
			typ:       f.Type,
			declaring: st,
			member:    f.Name,
			name:      name,
			optional:  optional,
		}
		if !setter {
			p.fields = append(p.fields, s)
			continue
		}

		if err := bindSetter(&s, st, f); err != nil {
			return err
		}
		p.properties = append(p.properties, s)
	}
	return nil
}

func bindSetter(s *site, st reflect.Type, f reflect.StructField) error {
	name := "Set" + upperFirst(f.Name)
	m, ok := reflect.PointerTo(st).MethodByName(name)
	if !ok {
		return configErr(st, "field %s is tagged setter but *%s has no exported method %s", f.Name, st.Name(), name)
	}
	mt := m.Type
	if mt.NumIn() != 2 || !f.Type.AssignableTo(mt.In(1)) {
		return configErr(st, "setter %s must take one %s argument", name, f.Type)
	}
	if mt.NumOut() > 1 || mt.NumOut() == 1 && mt.Out(0) != errorType {
		return configErr(st, "setter %s must return nothing or error", name)
	}
	s.member = name
	s.setter = m.Func
	s.setterErr = mt.NumOut() == 1
	return nil
}

func compileInvoker(fn reflect.Value, ft, declaring reflect.Type, member string, method bool) (*invoker, error) {
	if ft.IsVariadic() {
		return nil, configErr(declaring, "%s is variadic", member)
	}

	inv := &invoker{fn: fn, declaring: declaring, member: member, method: method}
	first := 0
	if method {
		first = 1
	}
	for i := first; i < ft.NumIn(); i++ {
		pt := ft.In(i)
		p := param{typ: pt}
		if isParamObject(pt) {
			sites, err := objectSites(pt)
			if err != nil {
				return nil, err
			}
			p.isObject, p.object = true, sites
		}
		inv.params = append(inv.params, p)
	}
	return inv, nil
}

func isParamObject(t reflect.Type) bool {
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && f.Type == inType {
			return true
		}
	}
	return false
}

func objectSites(t reflect.Type) ([]site, error) {
	var sites []site
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Type == inType || !f.IsExported() {
			continue
		}
		name, optional, setter, err := parseTag(f.Tag.Get(tagKey))
		if err != nil {
			return nil, configErr(t, "field %s: %v", f.Name, err)
		}
		if setter {
			return nil, configErr(t, "field %s: setter is not allowed in parameter objects", f.Name)
		}
		sites = append(sites, site{
			index:     []int{i},
			typ:       f.Type,
			declaring: t,
			member:    f.Name,
			name:      name,
			optional:  optional,
		})
	}
	return sites, nil
}

func parseTag(raw string) (name string, optional, setter bool, err error) {
	parts := strings.Split(raw, ",")
	name = strings.TrimSpace(parts[0])
	for _, opt := range parts[1:] {
		switch strings.TrimSpace(opt) {
		case "optional":
			optional = true
		case "setter":
			setter = true
		case "":
		default:
			return "", false, false, fmt.Errorf("unknown inject option %q", opt)
		}
	}
	return name, optional, setter, nil
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

// ---------------------------------------------------------------------------
// Application
// ---------------------------------------------------------------------------

func (p *plan) apply(call *Call, target reflect.Value) error {
	if len(p.fields) > 0 || len(p.properties) > 0 {
		root := target.Elem()
		for i := range p.fields {
			if err := p.fields[i].assign(call, root); err != nil {
				return err
			}
		}
		for i := range p.properties {
			if err := p.properties[i].callSetter(call, root); err != nil {
				return err
			}
		}
	}
	for _, m := range p.methods {
		if _, err := m.invoke(call, target); err != nil {
			return err
		}
	}
	return nil
}

// lookup resolves the site's dependency. ok is false when an optional
// dependency is missing and the site should be left alone.
func (s *site) lookup(call *Call) (v reflect.Value, ok bool, err error) {
	dep, found, err := call.Get(s.typ, s.name)
	if err != nil {
		return reflect.Value{}, false, err
	}
	if !found {
		if s.optional {
			return reflect.Value{}, false, nil
		}
		return reflect.Value{}, false, &InjectionError{
			Type:       s.declaring,
			Member:     s.member,
			Dependency: s.typ,
			Name:       s.name,
		}
	}
	v, err = valueFor(dep, s.typ)
	if err != nil {
		return reflect.Value{}, false, &InjectionError{
			Type:       s.declaring,
			Member:     s.member,
			Dependency: s.typ,
			Name:       s.name,
			Err:        err,
		}
	}
	return v, true, nil
}

func (s *site) assign(call *Call, root reflect.Value) error {
	v, ok, err := s.lookup(call)
	if err != nil || !ok {
		return err
	}
	f := root.FieldByIndex(s.index)
	if !f.CanSet() {
		f = reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Elem()
	}
	f.Set(v)
	return nil
}

func (s *site) callSetter(call *Call, root reflect.Value) error {
	v, ok, err := s.lookup(call)
	if err != nil || !ok {
		return err
	}
	holder := root.FieldByIndex(s.index[:len(s.index)-1])
	recv := reflect.NewAt(holder.Type(), unsafe.Pointer(holder.UnsafeAddr()))
	out := s.setter.Call([]reflect.Value{recv, v})
	if s.setterErr && !out[0].IsNil() {
		return fmt.Errorf("calling %s.%s: %w", s.declaring, s.member, out[0].Interface().(error))
	}
	return nil
}

func (inv *invoker) invoke(call *Call, recv reflect.Value) ([]reflect.Value, error) {
	args := make([]reflect.Value, 0, len(inv.params)+1)
	if inv.method {
		args = append(args, recv)
	}
	for i, p := range inv.params {
		v, err := p.resolve(call, inv, i)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	out := inv.fn.Call(args)
	if inv.returnsErr {
		if e := out[len(out)-1]; !e.IsNil() {
			err := e.Interface().(error)
			if inv.method {
				return nil, fmt.Errorf("calling %s.%s: %w", inv.declaring, inv.member, err)
			}
			return nil, err
		}
	}
	return out, nil
}

func (inv *invoker) construct(call *Call) (any, error) {
	out, err := inv.invoke(call, reflect.Value{})
	if err != nil {
		return nil, err
	}
	return out[0].Interface(), nil
}

func (p *param) resolve(call *Call, inv *invoker, i int) (reflect.Value, error) {
	if p.isObject {
		obj := reflect.New(p.typ).Elem()
		for j := range p.object {
			if err := p.object[j].assign(call, obj); err != nil {
				return reflect.Value{}, err
			}
		}
		return obj, nil
	}

	s := site{typ: p.typ, declaring: inv.declaring, member: fmt.Sprintf("%s#%d", inv.member, i)}
	v, _, err := s.lookup(call)
	return v, err
}

func valueFor(v any, t reflect.Type) (reflect.Value, error) {
	if v == nil {
		return reflect.Zero(t), nil
	}
	rv := reflect.ValueOf(v)
	if !rv.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%T is not assignable to %s", v, t)
	}
	return rv, nil
}
