package ir

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Path renders the position of y in its tree, e.g. "$.books[2].title".
func (y *Node) Path() string {
	if y.Parent == nil {
		return "$"
	}
	switch y.Parent.Type {
	case ObjectType:
		return y.Parent.Path() + "." + pathString(y.ParentField)
	case ArrayType:
		return y.Parent.Path() + "[" + strconv.Itoa(y.ParentIndex) + "]"
	default:
		panic("parent but not in container")
	}
}

// Pointer renders the position of y as an RFC 6901 JSON pointer.
func (y *Node) Pointer() string {
	if y.Parent == nil {
		return ""
	}
	switch y.Parent.Type {
	case ObjectType:
		return y.Parent.Pointer() + "/" + PointerEscape(y.ParentField)
	case ArrayType:
		return y.Parent.Pointer() + "/" + strconv.Itoa(y.ParentIndex)
	default:
		panic("parent but not in container")
	}
}

func PointerEscape(s string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(s)
}

// PathSeg is one step of a parsed path. Exactly one of Field, Index or
// IndexAll is set, except for the root segment which has none.
type PathSeg struct {
	IndexAll bool
	Index    *int
	Field    *string
	Subtree  bool
	Next     *PathSeg
}

func (p *PathSeg) String() string {
	buf := bytes.NewBuffer([]byte{'$'})
	sub := false
	for x := p; x != nil; x = x.Next {
		switch {
		case x.Subtree:
			buf.WriteString("..")
		case x.IndexAll:
			buf.WriteString("[*]")
		case x.Field != nil:
			if !sub {
				buf.WriteByte('.')
			}
			buf.WriteString(pathString(*x.Field))
		case x.Index != nil:
			fmt.Fprintf(buf, "[%d]", *x.Index)
		}
		sub = x.Subtree
	}
	return buf.String()
}

// Last returns the final segment of p.
func (p *PathSeg) Last() *PathSeg {
	x := p
	for x.Next != nil {
		x = x.Next
	}
	return x
}

// Split returns a copy of p without its final segment, and that segment.
// The final segment is nil for the root path "$".
func (p *PathSeg) Split() (*PathSeg, *PathSeg) {
	head := &PathSeg{}
	dst := head
	for x := p.Next; x != nil; x = x.Next {
		if x.Next == nil {
			last := *x
			return head, &last
		}
		cp := *x
		cp.Next = nil
		dst.Next = &cp
		dst = &cp
	}
	return head, nil
}

func ParsePath(p string) (*PathSeg, error) {
	if len(p) == 0 || p[0] != '$' {
		return nil, fmt.Errorf("%w: path %q should start with '$'", ErrPath, p)
	}
	root := &PathSeg{}
	if err := parseFrag(p[1:], root); err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrPath, p, err)
	}
	return root, nil
}

func parseFrag(frag string, parent *PathSeg) error {
	if len(frag) == 0 {
		return nil
	}
	next := &PathSeg{}
	switch frag[0] {
	case '.':
		if len(frag) > 1 && frag[1] == '.' {
			next.Subtree = true
			parent.Next = next
			rest := frag[2:]
			if rest != "" && rest[0] != '.' && rest[0] != '[' {
				rest = "." + rest
			}
			return parseFrag(rest, next)
		}
		field, rest, err := parseField(frag[1:])
		if err != nil {
			return err
		}
		next.Field = &field
		parent.Next = next
		return parseFrag(rest, next)
	case '[':
		i := strings.IndexByte(frag[1:], ']')
		if i == -1 {
			return fmt.Errorf("expected '[' <index> ']'")
		}
		index, all, err := parseIndex(frag[1 : i+1])
		if err != nil {
			return err
		}
		next.IndexAll = all
		if !all {
			next.Index = &index
		}
		parent.Next = next
		return parseFrag(frag[i+2:], next)
	default:
		return fmt.Errorf("expected '.' or '['")
	}
}

func parseIndex(is string) (index int, all bool, err error) {
	if is == "*" {
		return 0, true, nil
	}
	u64, err := strconv.ParseUint(is, 10, 32)
	if err != nil {
		return 0, false, err
	}
	return int(u64), false, nil
}

func parseField(frag string) (field, rest string, err error) {
	if len(frag) == 0 {
		return "", "", fmt.Errorf("expected field at end of string")
	}
	if frag[0] != '\'' {
		i := strings.IndexAny(frag, ".[")
		if i == -1 {
			return frag, "", nil
		}
		return frag[:i], frag[i:], nil
	}
	escaped := false
	res := make([]byte, 0, len(frag))
	for i := 1; i < len(frag); i++ {
		c := frag[i]
		switch {
		case c == '\\' && !escaped:
			escaped = true
		case c == '\'' && !escaped:
			return string(res), frag[i+1:], nil
		default:
			escaped = false
			res = append(res, c)
		}
	}
	return "", "", fmt.Errorf("end of string scanning for \"'\"")
}

// QuoteField renders f as a path field, quoting it when needed.
func QuoteField(f string) string {
	return pathString(f)
}

func pathString(f string) string {
	if f != "" && strings.IndexAny(f, "'.*$[] ") == -1 {
		return f
	}
	return "'" + strings.ReplaceAll(f, "'", "\\'") + "'"
}

// Lookup returns the live node at path p below y. Unlike ListPath it does
// not accept wildcards.
func (y *Node) Lookup(p string) (*Node, error) {
	seg, err := ParsePath(p)
	if err != nil {
		return nil, err
	}
	return y.lookup(seg.Next)
}

// LookupSeg is Lookup for an already parsed path.
func (y *Node) LookupSeg(p *PathSeg) (*Node, error) {
	return y.lookup(p.Next)
}

func (y *Node) lookup(seg *PathSeg) (*Node, error) {
	res := y
	for ; seg != nil; seg = seg.Next {
		switch {
		case seg.IndexAll, seg.Subtree:
			return nil, fmt.Errorf("%w: wildcard in lookup at %s", ErrPath, res.Path())
		case seg.Index != nil:
			if res.Type != ArrayType {
				return nil, fmt.Errorf("%w: expected array at %s, got %s", ErrType, res.Path(), res.Type)
			}
			index := *seg.Index
			if index >= len(res.Values) {
				return nil, fmt.Errorf("%w: %d (len %d) at %s", ErrIndex, index, len(res.Values), res.Path())
			}
			res = res.Values[index]
		case seg.Field != nil:
			if res.Type != ObjectType {
				return nil, fmt.Errorf("%w: expected object at %s, got %s", ErrType, res.Path(), res.Type)
			}
			i := res.fieldIndex(*seg.Field)
			if i == -1 {
				return nil, fmt.Errorf("%w: %s.%s", ErrNotFound, res.Path(), pathString(*seg.Field))
			}
			res = res.Values[i]
		}
	}
	return res, nil
}

// ListPath appends to dst every live node matching yPath, which may
// contain [*] and .. wildcards.
func (y *Node) ListPath(dst []*Node, yPath string) ([]*Node, error) {
	yp, err := ParsePath(yPath)
	if err != nil {
		return nil, err
	}
	return y.listPath(dst, yp.Next), nil
}

func (y *Node) listPath(dst []*Node, yp *PathSeg) []*Node {
	if yp == nil {
		return append(dst, y)
	}
	if yp.Subtree {
		_ = y.Visit(func(node *Node, isPost bool) (bool, error) {
			if isPost {
				return false, nil
			}
			dst = node.listPath(dst, yp.Next)
			return node.Type.IsContainer(), nil
		})
		return dst
	}
	switch y.Type {
	case ObjectType:
		if yp.Field == nil {
			return dst
		}
		if i := y.fieldIndex(*yp.Field); i != -1 {
			dst = y.Values[i].listPath(dst, yp.Next)
		}
	case ArrayType:
		switch {
		case yp.IndexAll:
			for _, yv := range y.Values {
				dst = yv.listPath(dst, yp.Next)
			}
		case yp.Index != nil && *yp.Index < len(y.Values):
			dst = y.Values[*yp.Index].listPath(dst, yp.Next)
		}
	}
	return dst
}
