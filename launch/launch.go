// Package launch builds pipelines from YAML descriptions.
//
//	name: pipeline
//	elements:
//	  - {type: fakesrc, name: src, properties: {num_buffers: 10}}
//	  - {type: fakesink, name: sink}
//	links:
//	  - {src: src, sink: sink}
//
// Elements are chained in order of description when links are omitted.
// Link ends are element names, optionally followed by pad name after a
// colon: "tee:src_0".
package launch

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/dudk/flow"
)

// Description of the pipeline.
type Description struct {
	Name     string    `yaml:"name"`
	Elements []Element `yaml:"elements"`
	Links    []Link    `yaml:"links"`
}

// Element describes a single element.
type Element struct {
	Type string `yaml:"type"`
	Name string `yaml:"name"`
	// Properties are set in order of description.
	Properties yaml.MapSlice `yaml:"properties"`
}

// Link describes a link between two elements.
type Link struct {
	Src  string `yaml:"src"`
	Sink string `yaml:"sink"`
}

// Parse decodes description. Unknown fields are rejected.
func Parse(data []byte) (*Description, error) {
	var d Description
	if err := yaml.UnmarshalStrict(data, &d); err != nil {
		return nil, fmt.Errorf("parse description: %w", err)
	}
	if len(d.Elements) == 0 {
		return nil, fmt.Errorf("parse description: no elements")
	}
	return &d, nil
}

// Load reads and decodes description file.
func Load(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Build creates pipeline with elements made by registry and links them.
func (d *Description) Build(r *flow.Registry, options ...flow.Option) (*flow.Pipeline, error) {
	p, err := flow.NewPipeline(d.Name, options...)
	if err != nil {
		return nil, err
	}
	elements := make([]*flow.Element, 0, len(d.Elements))
	for i, desc := range d.Elements {
		e, err := r.Make(desc.Type, desc.Name)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		for _, prop := range desc.Properties {
			name := fmt.Sprint(prop.Key)
			if err := e.SetProperty(name, prop.Value); err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
		}
		if err := p.Add(e); err != nil {
			return nil, err
		}
		elements = append(elements, e)
	}

	if len(d.Links) == 0 {
		for i := 1; i < len(elements); i++ {
			if err := elements[i-1].Link(elements[i]); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
	for _, l := range d.Links {
		if err := link(p, l); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func link(p *flow.Pipeline, l Link) error {
	srcName, srcPad := splitEnd(l.Src)
	sinkName, sinkPad := splitEnd(l.Sink)
	src, err := lookup(p, srcName)
	if err != nil {
		return err
	}
	sink, err := lookup(p, sinkName)
	if err != nil {
		return err
	}
	if srcPad == "" && sinkPad == "" {
		return src.Link(sink)
	}
	if srcPad == "" {
		srcPad = "src"
	}
	if sinkPad == "" {
		sinkPad = "sink"
	}
	return src.LinkPads(srcPad, sink, sinkPad)
}

func lookup(p *flow.Pipeline, name string) (*flow.Element, error) {
	n := p.Lookup(name)
	if n == nil {
		return nil, fmt.Errorf("link %q: %w", name, flow.ErrNotAChild)
	}
	return n.Base(), nil
}

func splitEnd(s string) (element, pad string) {
	element, pad, _ = strings.Cut(s, ":")
	return element, pad
}
