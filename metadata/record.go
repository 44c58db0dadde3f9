// Package metadata loads metadata overlays: external records that
// customize or suppress generation for individual declarations, keyed by
// declaration identity.
package metadata

import (
	"slices"

	"dario.cat/mergo"
)

// Record is an override record as written in a metadata file.
//
// Flags and code fragments are lists: merging concatenates them unless
// the overriding record sets Replace.
type Record struct {
	Flags    []string `yaml:"flags" toml:"flags"`
	Cast     string   `yaml:"cast" toml:"cast"`
	Accessor string   `yaml:"accessor" toml:"accessor"`
	Platform []string `yaml:"platform" toml:"platform"`
	Align    int      `yaml:"align" toml:"align"`
	Count    int      `yaml:"count" toml:"count"`
	PreCall  string   `yaml:"pre-call" toml:"pre-call"`
	PostCall string   `yaml:"post-call" toml:"post-call"`
	// Body replaces the whole generated call sequence.
	Body string `yaml:"body" toml:"body"`
	// Params is keyed by parameter name or zero-based index.
	Params  map[string]ParamRecord `yaml:"params" toml:"params"`
	Replace bool                   `yaml:"replace" toml:"replace"`
}

// ParamRecord overrides a single parameter.
type ParamRecord struct {
	Flags   []string `yaml:"flags" toml:"flags"`
	Cast    string   `yaml:"cast" toml:"cast"`
	Length  string   `yaml:"length" toml:"length"`
	Replace bool     `yaml:"replace" toml:"replace"`
}

// Merge layers override over base. Scalars in override win when set;
// flag words and code fragments concatenate, unless override.Replace is
// set, in which case override's lists are used alone.
func Merge(base, override Record) Record {
	flags := concatWords(base.Flags, override.Flags, override.Replace)
	pre := concatCode(base.PreCall, override.PreCall, override.Replace)
	post := concatCode(base.PostCall, override.PostCall, override.Replace)
	params := mergeParams(base.Params, override.Params)

	res := base
	res.Params = nil
	override.Params = nil
	if err := mergo.Merge(&res, override, mergo.WithOverride); err != nil {
		// Both sides have the same type; mergo only fails on mismatched kinds.
		panic(err)
	}
	res.Flags = flags
	res.PreCall = pre
	res.PostCall = post
	res.Params = params
	res.Replace = false
	return res
}

// MergeParam layers override over base the same way [Merge] does.
func MergeParam(base, override ParamRecord) ParamRecord {
	res := base
	res.Flags = concatWords(base.Flags, override.Flags, override.Replace)
	if override.Cast != "" {
		res.Cast = override.Cast
	}
	if override.Length != "" {
		res.Length = override.Length
	}
	res.Replace = false
	return res
}

func mergeParams(base, override map[string]ParamRecord) map[string]ParamRecord {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	res := make(map[string]ParamRecord, len(base)+len(override))
	for k, v := range base {
		res[k] = v
	}
	for k, v := range override {
		res[k] = MergeParam(res[k], v)
	}
	return res
}

func concatWords(base, override []string, replace bool) []string {
	if replace {
		return slices.Clone(override)
	}
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	return append(slices.Clone(base), override...)
}

func concatCode(base, override string, replace bool) string {
	switch {
	case replace, base == "":
		return override
	case override == "":
		return base
	default:
		return base + "\n" + override
	}
}
