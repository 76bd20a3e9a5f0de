// Copyright (C) 2026 the msl authors.
// See LICENSE for copying information.

package msl

import (
	"context"
	"database/sql"
	"time"
)

// encodeAttrs flattens a tag's attribute map into physical rows ready for
// insertion, one row per scalar and one per array element, each carrying
// the attribute's declared type. It checks nothing itself and never
// returns an error; a value that does not match its type is reported as
// ErrInternal by attrInsertColumns when the row is bound.
func encodeAttrs(tagFK int64, attrs map[string]AttrValue) ([]TagAttr, error) {
	var out []TagAttr
	for name, v := range attrs {
		if v.IsArray() {
			for i, elem := range v.Array {
				out = append(out, TagAttr{TagFK: tagFK, Name: name, Type: v.Type, Index: int32(i), Value: elem})
			}
			continue
		}
		out = append(out, TagAttr{TagFK: tagFK, Name: name, Type: v.Type, Index: -1, Value: v.Scalar})
	}
	return out, nil
}

// readTagAttrs runs a single query returning all attribute rows for all
// tags in tagPKs, ordered by (km.ordering, attr_name, attr_index), and
// collapses them into a per-tag attribute map. Multi-valued attributes
// (index >= 0) are assembled into array values in encounter order;
// scalars (index == -1) are stored directly.
func readTagAttrs(ctx context.Context, tx *conn, mappingTable string, tenant TenantID, stage int32, tagPKs []int64) (map[int64]map[string]AttrValue, error) {
	query := `
		SELECT km.ordering, a.tag_fk, a.attr_name, a.attr_type, a.attr_index,
		       a.attr_value_bool, a.attr_value_int, a.attr_value_float,
		       a.attr_value_string, a.attr_value_decimal, a.attr_value_date, a.attr_value_datetime
		FROM ` + mappingTable + ` km
		JOIN tag_attr a ON a.tenant_id = $1 AND a.tag_fk = km.pk
		WHERE km.mapping_stage = $2
		ORDER BY km.ordering, a.attr_name, a.attr_index`

	rows, err := tx.QueryContext(ctx, query, tenant, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[int64]map[string]AttrValue)
	// arrays tracks in-progress array attributes keyed by (tagFK,name)
	// so repeated rows for the same attribute append in encounter order.
	type key struct {
		tagFK int64
		name  string
	}
	arrays := make(map[key]*[]interface{})

	for rows.Next() {
		var (
			ordering                                                      int
			tagFK                                                         int64
			name                                                          string
			typ                                                           string
			index                                                         int32
			vBool                                                         sql.NullBool
			vInt                                                          sql.NullInt64
			vFloat                                                        sql.NullFloat64
			vString, vDecimal                                             sql.NullString
			vDate, vDatetime                                              sql.NullTime
		)
		if err := rows.Scan(&ordering, &tagFK, &name, &typ, &index,
			&vBool, &vInt, &vFloat, &vString, &vDecimal, &vDate, &vDatetime); err != nil {
			return nil, err
		}

		value := decodeAttrColumn(AttrPrimitiveType(typ), vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime)

		tagAttrs, ok := result[tagFK]
		if !ok {
			tagAttrs = make(map[string]AttrValue)
			result[tagFK] = tagAttrs
		}

		if index < 0 {
			tagAttrs[name] = AttrValue{Type: AttrPrimitiveType(typ), Scalar: value}
			continue
		}

		k := key{tagFK, name}
		arr, ok := arrays[k]
		if !ok {
			empty := []interface{}{}
			arrays[k] = &empty
			arr = &empty
		}
		*arr = append(*arr, value)
		tagAttrs[name] = AttrValue{Type: AttrPrimitiveType(typ), Array: *arr}
	}
	return result, rows.Err()
}

func decodeAttrColumn(typ AttrPrimitiveType, vBool sql.NullBool, vInt sql.NullInt64, vFloat sql.NullFloat64, vString, vDecimal sql.NullString, vDate, vDatetime sql.NullTime) interface{} {
	switch typ {
	case AttrBoolean:
		return vBool.Bool
	case AttrInteger:
		return vInt.Int64
	case AttrFloat:
		return vFloat.Float64
	case AttrString:
		return vString.String
	case AttrDecimal:
		return vDecimal.String
	case AttrDate:
		return vDate.Time
	case AttrDatetime:
		return vDatetime.Time
	default:
		return nil
	}
}

// attrInsertColumns returns the seven nullable value-column bindings for
// one attribute value: only the column this attribute's type occupies is
// valid, every other value column is left null.
func attrInsertColumns(typ AttrPrimitiveType, value interface{}) (vBool sql.NullBool, vInt sql.NullInt64, vFloat sql.NullFloat64, vString, vDecimal sql.NullString, vDate, vDatetime sql.NullTime, err error) {
	switch typ {
	case AttrBoolean:
		b, ok := value.(bool)
		if !ok {
			return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, ErrInternal.New("attribute value for BOOLEAN is %T", value)
		}
		vBool = sql.NullBool{Bool: b, Valid: true}
	case AttrInteger:
		i, ok := toInt64(value)
		if !ok {
			return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, ErrInternal.New("attribute value for INTEGER is %T", value)
		}
		vInt = sql.NullInt64{Int64: i, Valid: true}
	case AttrFloat:
		f, ok := value.(float64)
		if !ok {
			return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, ErrInternal.New("attribute value for FLOAT is %T", value)
		}
		vFloat = sql.NullFloat64{Float64: f, Valid: true}
	case AttrString:
		str, ok := value.(string)
		if !ok {
			return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, ErrInternal.New("attribute value for STRING is %T", value)
		}
		vString = sql.NullString{String: str, Valid: true}
	case AttrDecimal:
		str, ok := value.(string)
		if !ok {
			return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, ErrInternal.New("attribute value for DECIMAL is %T", value)
		}
		vDecimal = sql.NullString{String: str, Valid: true}
	case AttrDate:
		t, ok := value.(time.Time)
		if !ok {
			return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, ErrInternal.New("attribute value for DATE is %T", value)
		}
		vDate = sql.NullTime{Time: t, Valid: true}
	case AttrDatetime:
		t, ok := value.(time.Time)
		if !ok {
			return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, ErrInternal.New("attribute value for DATETIME is %T", value)
		}
		vDatetime = sql.NullTime{Time: t, Valid: true}
	default:
		return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, ErrInternal.New("unknown attribute type %s", typ)
	}
	return vBool, vInt, vFloat, vString, vDecimal, vDate, vDatetime, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}
