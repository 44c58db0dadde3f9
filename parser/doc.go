package parser

import "strings"

// Doc is a doc comment split into block tags.
type Doc struct {
	Pos  Pos
	Tags []Tag
}

// Tag is a block tag line such as "@param buf flags=no_out".
type Tag struct {
	Pos  Pos
	Name string
	// Arg is the first word after @param, empty for other tags.
	Arg   string
	Value string
}

// Find returns all tags called name.
func (d *Doc) Find(name string) []Tag {
	if d == nil {
		return nil
	}
	var res []Tag
	for _, t := range d.Tags {
		if t.Name == name {
			res = append(res, t)
		}
	}
	return res
}

func parseDoc(text string, pos Pos) *Doc {
	d := &Doc{Pos: pos}
	text = strings.TrimPrefix(text, "/**")
	text = strings.TrimSuffix(text, "*/")
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if !strings.HasPrefix(line, "@") {
			continue
		}
		name, rest, _ := strings.Cut(line[1:], " ")
		tag := Tag{
			Pos:   Pos{File: pos.File, Line: pos.Line + i},
			Name:  name,
			Value: strings.TrimSpace(rest),
		}
		if name == "param" {
			tag.Arg, tag.Value, _ = strings.Cut(tag.Value, " ")
			tag.Value = strings.TrimSpace(tag.Value)
		}
		d.Tags = append(d.Tags, tag)
	}
	return d
}
