package fn

import (
	"github.com/roach88/pql/internal/datum"
	"github.com/roach88/pql/internal/types"
)

func registerWindows(r *Registry) {
	bigint := func([]types.PType) types.PType { return types.BigInt() }

	r.RegisterWindow(&WindowFunction{
		Name: "row_number", Returns: bigint,
		Compute: func(p Partition) ([]datum.Datum, error) {
			out := make([]datum.Datum, p.Size())
			for i := range out {
				out[i] = datum.BigInt(int64(i + 1))
			}
			return out, nil
		},
	})
	r.RegisterWindow(&WindowFunction{
		Name: "rank", Returns: bigint,
		Compute: func(p Partition) ([]datum.Datum, error) {
			out := make([]datum.Datum, p.Size())
			rank := 1
			for i := range out {
				if i > 0 && p.Peers[i] != p.Peers[i-1] {
					rank = i + 1
				}
				out[i] = datum.BigInt(int64(rank))
			}
			return out, nil
		},
	})
	r.RegisterWindow(&WindowFunction{
		Name: "dense_rank", Returns: bigint,
		Compute: func(p Partition) ([]datum.Datum, error) {
			out := make([]datum.Datum, p.Size())
			for i := range out {
				out[i] = datum.BigInt(int64(p.Peers[i] + 1))
			}
			return out, nil
		},
	})
	r.RegisterWindow(&WindowFunction{
		Name: "lag", MinArgs: 1, MaxArgs: 3, Returns: firstArgType,
		Compute: func(p Partition) ([]datum.Datum, error) { return shift(p, "lag", -1) },
	})
	r.RegisterWindow(&WindowFunction{
		Name: "lead", MinArgs: 1, MaxArgs: 3, Returns: firstArgType,
		Compute: func(p Partition) ([]datum.Datum, error) { return shift(p, "lead", 1) },
	})
}

func firstArgType(args []types.PType) types.PType {
	if len(args) == 0 {
		return types.Dynamic()
	}
	return args[0]
}

// shift implements LAG (dir -1) and LEAD (dir 1). The optional second
// argument is the offset (default 1) and the optional third the default
// value (default NULL), both evaluated against the current row.
func shift(p Partition, name string, dir int) ([]datum.Datum, error) {
	out := make([]datum.Datum, p.Size())
	for i, args := range p.Args {
		offset := int64(1)
		if len(args) > 1 {
			o := args[1]
			if o.IsAbsent() || !o.Kind().IsExactInteger() || o.Kind() == types.KindNumeric {
				return nil, dataErr(CodeInvalidArg, name, "offset must be an integer, got %s", o)
			}
			if offset = o.Int64(); offset < 0 {
				return nil, dataErr(CodeInvalidArg, name, "offset must not be negative, got %d", offset)
			}
		}
		fallback := datum.Null(args[0].Type())
		if len(args) > 2 {
			fallback = args[2]
		}
		j := int64(i) + int64(dir)*offset
		if j < 0 || j >= int64(len(p.Args)) {
			out[i] = fallback
			continue
		}
		out[i] = p.Args[j][0]
	}
	return out, nil
}
