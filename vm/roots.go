package vm

// Roots returns every object reachable from the active stack, the call
// frames, the open upvalues, the globals and the interning table, in
// discovery order. It is the mark phase a collector would run; nothing is
// freed.
func (vm *VM) Roots() []Object {
	m := marker{seen: make(map[ObjectID]bool)}

	for i := 0; i < vm.sp; i++ {
		m.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		m.mark(vm.frames[i].closure)
	}
	for up := vm.openUpvalues; up != nil; up = up.next {
		m.mark(up)
	}
	vm.globals.Each(func(key *String, value Value) {
		m.mark(key)
		m.markValue(value)
	})
	vm.heap.Strings().Each(func(key *String, _ Value) {
		m.mark(key)
	})

	m.trace()
	return m.found
}

// marker is a tri-colour walk: found holds every object reached, gray the
// ones whose references are still to be scanned.
type marker struct {
	seen  map[ObjectID]bool
	found []Object
	gray  []Object
}

func (m *marker) markValue(v Value) {
	if v.IsObject() {
		m.mark(v.AsObject())
	}
}

func (m *marker) mark(obj Object) {
	if obj == nil || m.seen[obj.ID()] {
		return
	}
	m.seen[obj.ID()] = true
	m.found = append(m.found, obj)
	m.gray = append(m.gray, obj)
}

func (m *marker) trace() {
	for len(m.gray) > 0 {
		obj := m.gray[len(m.gray)-1]
		m.gray = m.gray[:len(m.gray)-1]

		switch o := obj.(type) {
		case *Closure:
			m.mark(o.Function)
			for _, up := range o.Upvalues {
				if up != nil {
					m.mark(up)
				}
			}
		case *Function:
			if o.Name != nil {
				m.mark(o.Name)
			}
			for _, c := range o.Chunk.Constants {
				m.markValue(c)
			}
		case *Upvalue:
			m.markValue(*o.Location)
		}
	}
}
