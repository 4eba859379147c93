// Package registry is the single dispatch table for complaint variants.
// For each variant it knows the display label, accepted aliases, the
// detail table the store writes to, how to build an empty detail payload
// and the field rules used to validate it.
package registry

import (
	"reflect"
	"strings"

	"github.com/qjdesk/complaint-desk/internal/model"
	"github.com/qjdesk/complaint-desk/internal/utils"
)

// Spec describes one complaint variant.
type Spec struct {
	Variant model.Variant
	Label   string
	Table   string
	Aliases []string
	New     func() model.Detail
}

var specs = map[model.Variant]Spec{
	model.VariantDelay: {
		Variant: model.VariantDelay,
		Label:   "Delay",
		Table:   "complaint_delays",
		Aliases: []string{"retraso", "demora", "late"},
		New:     func() model.Detail { return &model.DelayDetail{} },
	},
	model.VariantMistreatment: {
		Variant: model.VariantMistreatment,
		Label:   "Mistreatment",
		Table:   "complaint_mistreatments",
		Aliases: []string{"maltrato", "malos tratos", "mal trato"},
		New:     func() model.Detail { return &model.MistreatmentDetail{} },
	},
	model.VariantInsecurity: {
		Variant: model.VariantInsecurity,
		Label:   "Insecurity",
		Table:   "complaint_insecurities",
		Aliases: []string{"inseguridad", "safety"},
		New:     func() model.Detail { return &model.InsecurityDetail{} },
	},
	model.VariantUnitCondition: {
		Variant: model.VariantUnitCondition,
		Label:   "Unit Condition",
		Table:   "complaint_unit_conditions",
		Aliases: []string{"condicion de la unidad", "condiciones de la unidad", "unidad", "unit"},
		New:     func() model.Detail { return &model.UnitConditionDetail{} },
	},
	model.VariantOther: {
		Variant: model.VariantOther,
		Label:   "Other",
		Table:   "complaint_others",
		Aliases: []string{"otro", "otros", "otra"},
		New:     func() model.Detail { return &model.OtherDetail{} },
	},
}

// index maps every folded key, label and alias to its variant.
var index = func() map[string]model.Variant {
	idx := make(map[string]model.Variant)
	for v, s := range specs {
		idx[utils.Fold(string(v))] = v
		idx[utils.Fold(s.Label)] = v
		for _, a := range s.Aliases {
			idx[utils.Fold(a)] = v
		}
	}
	return idx
}()

// Normalize reconciles the historical label space ("Delay", "Unit
// Condition", Spanish labels) and the normalized key space ("delay",
// "unit_condition") into one canonical variant.
func Normalize(raw string) (model.Variant, bool) {
	v, ok := index[utils.Fold(raw)]
	return v, ok
}

// Lookup returns the spec of a canonical variant.
func Lookup(v model.Variant) (Spec, bool) {
	s, ok := specs[v]
	return s, ok
}

// MustLookup is Lookup for variants that already went through Normalize.
func MustLookup(v model.Variant) Spec {
	s, ok := specs[v]
	if !ok {
		panic("registry: unknown variant " + string(v))
	}
	return s
}

// TableFor returns the detail table of v.
func TableFor(v model.Variant) (string, bool) {
	s, ok := specs[v]
	return s.Table, ok
}

// FieldInfo describes one detail field for API consumers.
type FieldInfo struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Rules    string `json:"rules,omitempty"`
}

// TypeInfo is the catalog entry of one variant.
type TypeInfo struct {
	Key    model.Variant `json:"key"`
	Label  string        `json:"label"`
	Fields []FieldInfo   `json:"fields"`
}

// Catalog lists every variant with its detail fields in display order.
func Catalog() []TypeInfo {
	out := make([]TypeInfo, 0, len(model.Variants))
	for _, v := range model.Variants {
		s := specs[v]
		out = append(out, TypeInfo{Key: v, Label: s.Label, Fields: describe(s.New())})
	}
	return out
}

func describe(d model.Detail) []FieldInfo {
	t := reflect.TypeOf(d).Elem()
	fields := make([]FieldInfo, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		rules := f.Tag.Get("validate")
		fields = append(fields, FieldInfo{
			Name:     name,
			Required: strings.HasPrefix(rules, "required"),
			Rules:    strings.TrimPrefix(strings.TrimPrefix(rules, "required"), ","),
		})
	}
	return fields
}
