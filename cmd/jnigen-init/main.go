// Command jnigen-init sets up jnigen for a Java source tree: it writes a
// jnigen.toml with a target for the host platform and a metadata file
// listing every native method found, ready to be filled in.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/pelletier/go-toml/v2"
	"github.com/refaktor/jnigen/config"
	"github.com/refaktor/jnigen/ir"
	"github.com/refaktor/jnigen/parser"
	"gopkg.in/yaml.v3"
)

var errExists = errors.New("already exists, use --force to overwrite")

type CLI struct {
	Source   string `arg:"" optional:"" default:"src" help:"Source root, relative to the output directory."`
	Dir      string `short:"C" type:"path" default:"." help:"Directory to write the files to."`
	Target   string `help:"Target id. Defaults to the host platform."`
	WordSize int    `name:"word-size" help:"Pointer width in bits. Defaults to the host's."`
	Force    bool   `help:"Overwrite existing files."`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var cli CLI
	k, err := kong.New(&cli,
		kong.Name("jnigen-init"),
		kong.Description("Write a default jnigen.toml and a metadata skeleton."),
		kong.Writers(stdout, stderr),
	)
	if err != nil {
		fmt.Fprintln(stderr, "jnigen-init:", err)
		return 2
	}
	if _, err := k.Parse(args); err != nil {
		k.Errorf("%v", err)
		return 2
	}
	if err := cli.Run(stdout); err != nil {
		k.Errorf("%v", err)
		return 1
	}
	return 0
}

const (
	configName   = "jnigen.toml"
	metadataName = "jnigen.yaml"
)

func (c *CLI) Run(stdout io.Writer) error {
	t := config.HostTarget()
	if c.Target != "" {
		t.ID = c.Target
	}
	if c.WordSize != 0 {
		t.WordSize = c.WordSize
	}
	t.Source = c.Source
	t.Output = filepath.Join("out", t.ID)
	t.Metadata = metadataName
	if err := t.Validate(); err != nil {
		return err
	}

	cfgPath := filepath.Join(c.Dir, configName)
	metaPath := filepath.Join(c.Dir, metadataName)
	if !c.Force {
		for _, p := range []string{cfgPath, metaPath} {
			if _, err := os.Lstat(p); err == nil {
				return fmt.Errorf("%v: %w", p, errExists)
			}
		}
	}

	cfg, err := configFile(t)
	if err != nil {
		return err
	}
	srcRoot := c.Source
	if !filepath.IsAbs(srcRoot) {
		srcRoot = filepath.Join(c.Dir, srcRoot)
	}
	meta, n, err := metadataSkeleton(srcRoot)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(c.Dir, os.ModePerm); err != nil {
		return err
	}
	if err := os.WriteFile(cfgPath, cfg, 0o666); err != nil {
		return err
	}
	if err := os.WriteFile(metaPath, meta, 0o666); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %v with target %q.\n", cfgPath, t.ID)
	fmt.Fprintf(stdout, "Wrote %v listing %v native methods.\n", metaPath, n)
	fmt.Fprintf(stdout, "Run \"jnigen -c %v\" to generate the glue.\n", cfgPath)
	return nil
}

func configFile(t config.Target) ([]byte, error) {
	cfg := config.Config{
		Version: config.FormatVersion,
		Default: t.ID,
		Targets: []config.Target{t},
	}
	var b bytes.Buffer
	b.WriteString("# jnigen configuration. Relative paths are relative to this file.\n\n")
	enc := toml.NewEncoder(&b)
	enc.SetIndentTables(true)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// metadataSkeleton returns a metadata file with an empty record per
// native method under root, and the number of methods. A missing root
// yields a file without classes.
func metadataSkeleton(root string) ([]byte, int, error) {
	var files []*parser.File
	if _, err := os.Stat(root); err == nil {
		files, err = parser.ParseDir(root)
		if err != nil {
			return nil, 0, err
		}
	}
	m, err := ir.Build(files, nil)
	if err != nil {
		return nil, 0, err
	}

	scalar := func(v string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Value: v}
	}
	mapping := func() *yaml.Node {
		return &yaml.Node{Kind: yaml.MappingNode}
	}

	n := 0
	classes := mapping()
	for _, u := range m.Units {
		methods := mapping()
		for _, meth := range u.Methods {
			key := scalar(meth.Name + "(" + meth.Signature() + ")")
			key.Style = yaml.DoubleQuotedStyle
			key.HeadComment = "# " + meth.Pos.String()
			rec := mapping()
			rec.Style = yaml.FlowStyle
			methods.Content = append(methods.Content, key, rec)
			n++
		}
		class := mapping()
		class.Content = append(class.Content, scalar("methods"), methods)
		classes.Content = append(classes.Content, scalar(u.FQCN), class)
	}
	if len(classes.Content) == 0 {
		classes.Style = yaml.FlowStyle
	}

	top := mapping()
	top.Content = append(top.Content, scalar("classes"), classes)
	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: "# jnigen metadata overlay. Records override the inline directives of the\n# Java sources, keyed by \"name(parameter descriptors)\".",
		Content:     []*yaml.Node{top},
	}
	var b bytes.Buffer
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, 0, err
	}
	if err := enc.Close(); err != nil {
		return nil, 0, err
	}
	return b.Bytes(), n, nil
}

