package resource

import (
	"github.com/mitchellh/mapstructure"
)

// Setter lets a resource's config struct fill in defaults after decode,
// the same convention the teacher's frameworks/service/cfg package uses
// for HTTP service configs.
type Setter interface {
	ApplyDefaults()
}

// Decode decodes a resource's raw config args into a typed struct using
// "resource" struct tags, then calls ApplyDefaults if out implements
// Setter.
func Decode(args map[string]any, out any) error {
	decoderCfg := &mapstructure.DecoderConfig{
		Result:  out,
		TagName: "resource",
	}
	decoder, err := mapstructure.NewDecoder(decoderCfg)
	if err != nil {
		return err
	}
	if err := decoder.Decode(args); err != nil {
		return err
	}
	if s, ok := out.(Setter); ok {
		s.ApplyDefaults()
	}
	return nil
}
