package tracing

import (
	"github.com/fyrsmithlabs/jobtrace/internal/unit"
)

type fakeUnit struct {
	kind   unit.Kind
	parent unit.Unit
	owner  unit.Unit
	id     unit.Identity
	ext    *unit.ExtensionData
}

func (f *fakeUnit) Kind() unit.Kind                    { return f.kind }
func (f *fakeUnit) Parent() unit.Unit                  { return f.parent }
func (f *fakeUnit) Identity() unit.Identity            { return f.id }
func (f *fakeUnit) ExtensionData() *unit.ExtensionData { return f.ext }
func (f *fakeUnit) Owner() unit.Unit                   { return f.owner }

func newFake(kind unit.Kind, name string, parent *fakeUnit) *fakeUnit {
	f := &fakeUnit{
		kind: kind,
		id:   unit.Identity{Name: name, ExecutionID: name + "-id"},
		ext:  unit.NewExtensionData(),
	}
	if parent != nil {
		f.parent = parent
	}
	return f
}

func job(name string, parent *fakeUnit) *fakeUnit {
	return newFake(unit.KindJob, name, parent)
}

func dataFlow(name string, parent *fakeUnit) *fakeUnit {
	return newFake(unit.KindDataFlow, name, parent)
}

func step(name string, owner *fakeUnit) *fakeUnit {
	s := newFake(unit.KindStep, name, owner)
	if owner != nil {
		s.owner = owner
	}
	return s
}

func action(name string, owner *fakeUnit) *fakeUnit {
	a := newFake(unit.KindAction, name, owner)
	if owner != nil {
		a.owner = owner
	}
	return a
}
