package generator

import (
	"strings"

	"github.com/erdflow/backend/internal/cdm"
	"github.com/erdflow/backend/internal/domain/erd"
)

// nameResolver maps diagram entity names onto platform logical names,
// honoring CDM matches and explicit foreign-prefix overrides
// ("otherprefix:EntityName").
type nameResolver struct {
	model   *erd.Model
	matches map[string]cdm.Match // keyed by lowercased original name
	opts    Options
}

func newNameResolver(model *erd.Model, matches []cdm.Match, opts Options) *nameResolver {
	byName := make(map[string]cdm.Match, len(matches))
	for _, m := range matches {
		byName[strings.ToLower(m.OriginalEntity)] = m
	}
	return &nameResolver{model: model, matches: byName, opts: opts}
}

// cdmEntry returns the catalog entry matched to an entity name, or nil.
func (r *nameResolver) cdmEntry(name string) *cdm.Entry {
	m, ok := r.matches[strings.ToLower(name)]
	if !ok {
		return nil
	}
	entry := m.Entry
	return &entry
}

// resolve returns the platform logical name for a diagram entity name, or
// "" when the name resolves neither to a generated entity nor to a CDM
// entity. A "prefix:Name" override resolves under that foreign prefix.
func (r *nameResolver) resolve(name string) string {
	if foreignPrefix, bare, ok := splitForeignPrefix(name); ok {
		return LogicalName(foreignPrefix, bare)
	}
	if r.opts.UseCDM {
		if entry := r.cdmEntry(name); entry != nil {
			return entry.LogicalName
		}
	}
	if r.model.FindEntity(name) != nil {
		return LogicalName(r.opts.Prefix, name)
	}
	return ""
}

// lookupTargets returns every resolvable target logical name for a lookup
// attribute. A foreign-prefix override that also names a generated entity
// yields both candidates, so the column stays compatible with either.
func (r *nameResolver) lookupTargets(target string) []string {
	if foreignPrefix, bare, ok := splitForeignPrefix(target); ok {
		targets := []string{LogicalName(foreignPrefix, bare)}
		if r.model.FindEntity(bare) != nil {
			targets = append(targets, LogicalName(r.opts.Prefix, bare))
		}
		return targets
	}
	if logical := r.resolve(target); logical != "" {
		return []string{logical}
	}
	return nil
}

// referencingAttribute picks the lookup column implementing a one-to-many
// relationship: the referencing entity's FK attribute following the
// {referencedEntity}_id convention when present, a derived name otherwise.
// Either way the column lives under the caller's own prefix.
func (r *nameResolver) referencingAttribute(referencing, referenced string) string {
	conventional := strings.ToLower(referenced) + "_id"
	if entity := r.model.FindEntity(referencing); entity != nil {
		for _, attr := range entity.Attributes {
			if attr.IsForeignKey && strings.EqualFold(attr.Name, conventional) {
				return LogicalName(r.opts.Prefix, attr.Name)
			}
		}
		// Any FK that targets the referenced entity explicitly.
		for _, attr := range entity.Attributes {
			if attr.IsLookup && strings.EqualFold(attr.TargetEntity, referenced) {
				return LogicalName(r.opts.Prefix, attr.Name)
			}
		}
	}
	return LogicalName(r.opts.Prefix, conventional)
}

// splitForeignPrefix splits "otherprefix:EntityName" into its parts.
func splitForeignPrefix(name string) (prefix, bare string, ok bool) {
	idx := strings.Index(name, ":")
	if idx <= 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}
