package task

import "context"

// ExclusionSet is the computed set of qualified task names suppressed from
// real execution.
type ExclusionSet map[string]struct{}

// Has reports whether the qualified name is excluded.
func (s ExclusionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// ExclusionPolicy captures the caller-facing exclude/only override
// mechanism. Exclude always wins: when the exclude key was supplied at all
// (even as an empty list) the only list is ignored.
type ExclusionPolicy struct {
	Prefix       string
	Exclude      []string
	ExcludeGiven bool
	Only         []string
}

// Set computes the exclusion set over the engine's base task names.
func (p ExclusionPolicy) Set(baseNames []string) ExclusionSet {
	set := make(ExclusionSet)
	if p.ExcludeGiven || len(p.Exclude) > 0 {
		for _, base := range p.Exclude {
			set[Qualify(p.Prefix, base)] = struct{}{}
		}
		return set
	}
	if len(p.Only) == 0 {
		return set
	}
	keep := make(map[string]struct{}, len(p.Only))
	for _, base := range p.Only {
		keep[Qualify(p.Prefix, base)] = struct{}{}
	}
	for _, base := range baseNames {
		name := Qualify(p.Prefix, base)
		if _, ok := keep[name]; !ok {
			set[name] = struct{}{}
		}
	}
	return set
}

// Stub returns the no-op body registered in place of an excluded task. It
// never fails and never touches the real body; with warnExclusions set it
// emits one warning per invocation naming the task.
func Stub(name string, warnExclusions bool, logger Logger) Func {
	if logger == nil {
		logger = nopLogger{}
	}
	return func(ctx context.Context) error {
		if warnExclusions {
			logger.Printf("task %s is excluded and was not run", name)
		}
		return nil
	}
}
