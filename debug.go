package pgpickle

import (
	"fmt"
	"strings"
)

// String/GoString implementations for debug logging: String is a short
// human-readable form, GoString additionally carries the concrete Go type
// name.

func (n *None) String() string  { return "None" }
func (n *None) GoString() string { return "*pgpickle.None{}" }

func (b *Bool) String() string  { return fmt.Sprintf("%v", b.V) }
func (b *Bool) GoString() string { return fmt.Sprintf("*pgpickle.Bool{V: %v}", b.V) }

func (i *Int) String() string  { return fmt.Sprintf("%d", i.V) }
func (i *Int) GoString() string { return fmt.Sprintf("*pgpickle.Int{V: %d}", i.V) }

func (b *BigInt) String() string  { return b.Digits }
func (b *BigInt) GoString() string { return fmt.Sprintf("*pgpickle.BigInt{Digits: %q}", b.Digits) }

func (f *Float) String() string  { return fmt.Sprintf("%v", f.V) }
func (f *Float) GoString() string { return fmt.Sprintf("*pgpickle.Float{V: %v}", f.V) }

func (s *Str) String() string  { return s.V }
func (s *Str) GoString() string { return fmt.Sprintf("*pgpickle.Str{V: %q}", s.V) }

func (b *Bytes) String() string  { return fmt.Sprintf("b%q", b.V) }
func (b *Bytes) GoString() string { return fmt.Sprintf("*pgpickle.Bytes{V: %q}", b.V) }

func (l *List) String() string  { return sprintfSlice("[", "]", l.Items, "%v") }
func (l *List) GoString() string { return "*pgpickle.List" + sprintfSlice("{", "}", l.Items, "%#v") }

func (t *Tuple) String() string  { return sprintfSlice("(", ")", t.Items, "%v") }
func (t *Tuple) GoString() string { return "*pgpickle.Tuple" + sprintfSlice("{", "}", t.Items, "%#v") }

func (s *Set) String() string  { return sprintfSlice("{", "}", s.Items, "%v") }
func (s *Set) GoString() string { return "*pgpickle.Set" + sprintfSlice("{", "}", s.Items, "%#v") }

func (f *FrozenSet) String() string { return "frozenset(" + sprintfSlice("{", "}", f.Items, "%v") + ")" }
func (f *FrozenSet) GoString() string {
	return "*pgpickle.FrozenSet" + sprintfSlice("{", "}", f.Items, "%#v")
}

func (d *Dict) String() string  { return d.sprintf("%v") }
func (d *Dict) GoString() string { return "*pgpickle.Dict" + d.sprintf("%#v") }

func (d *Dict) sprintf(format string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range d.Entries {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, format+": "+format, e.Key, e.Val)
	}
	b.WriteByte('}')
	return b.String()
}

func (g *Global) String() string { return g.Module + "." + g.Name }
func (g *Global) GoString() string {
	return fmt.Sprintf("*pgpickle.Global{Module: %q, Name: %q}", g.Module, g.Name)
}

func (r *Reduce) String() string {
	return fmt.Sprintf("%v%v", r.Callable, r.Args)
}
func (r *Reduce) GoString() string {
	return fmt.Sprintf("*pgpickle.Reduce{Callable: %#v, Args: %#v, State: %#v}", r.Callable, r.Args, r.State)
}

func (p *PersistentRef) String() string  { return fmt.Sprintf("persistent(%v)", p.Pid) }
func (p *PersistentRef) GoString() string { return fmt.Sprintf("*pgpickle.PersistentRef{Pid: %#v}", p.Pid) }

func sprintfSlice(open, close string, items []Value, format string) string {
	var b strings.Builder
	b.WriteString(open)
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, format, it)
	}
	b.WriteString(close)
	return b.String()
}
