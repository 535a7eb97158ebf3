package entity

// FieldRename pairs an old field with the new field it was renamed to.
type FieldRename struct {
	From FieldDefinition
	To   FieldDefinition
}

// FieldDiff is the result of comparing two field lists across an update.
type FieldDiff struct {
	Added       []FieldDefinition
	Removed     []FieldDefinition
	Renamed     []FieldRename
	TypeChanged []FieldDefinition // the new definition of each type-changed field
}

// Diff computes the field diff between an old and a new field list.
//
// Rename detection (open question (b)): a field in newFields is treated as
// a rename of a field in oldFields when either:
//  1. newFields[i].PreviousName names an old field explicitly (wins when
//     both signals are present), or
//  2. no explicit PreviousName is given, but a field at the same stable
//     Position existed in oldFields under a different name.
// Fields that match by name on both sides are neither added nor removed.
func Diff(oldFields, newFields []FieldDefinition) FieldDiff {
	oldByName := make(map[string]FieldDefinition, len(oldFields))
	oldByPosition := make(map[int]FieldDefinition, len(oldFields))
	for _, f := range oldFields {
		oldByName[f.Name] = f
		oldByPosition[f.Position] = f
	}

	var diff FieldDiff
	consumedOld := make(map[string]bool)

	for _, nf := range newFields {
		if of, ok := oldByName[nf.Name]; ok {
			consumedOld[of.Name] = true
			if of.FieldType != nf.FieldType {
				diff.TypeChanged = append(diff.TypeChanged, nf)
			}
			continue
		}

		if nf.PreviousName != "" {
			if of, ok := oldByName[nf.PreviousName]; ok && !consumedOld[of.Name] {
				consumedOld[of.Name] = true
				diff.Renamed = append(diff.Renamed, FieldRename{From: of, To: nf})
				continue
			}
		}

		if of, ok := oldByPosition[nf.Position]; ok && !consumedOld[of.Name] {
			if _, stillPresent := oldByName[nf.Name]; !stillPresent {
				consumedOld[of.Name] = true
				diff.Renamed = append(diff.Renamed, FieldRename{From: of, To: nf})
				continue
			}
		}

		diff.Added = append(diff.Added, nf)
	}

	for _, of := range oldFields {
		if !consumedOld[of.Name] {
			diff.Removed = append(diff.Removed, of)
		}
	}

	return diff
}
