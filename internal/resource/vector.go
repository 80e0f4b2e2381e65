// Package resource 提供多維度資源向量（CPU、記憶體等）的運算
package resource

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrDimensionMismatch 兩個向量的維度不一致
var ErrDimensionMismatch = errors.New("resource: dimension mismatch")

// Vector 不可變的固定維度資源向量
//
// 所有運算都回傳新的向量，不會修改接收者。零值是 0 維向量。
type Vector struct {
	values []float64
}

// New 以給定的各維度數值建立向量
func New(values ...float64) Vector {
	v := make([]float64, len(values))
	copy(v, values)
	return Vector{values: v}
}

// Zero 建立指定維度的零向量
func Zero(dimensions int) Vector {
	return Vector{values: make([]float64, dimensions)}
}

// Dimensions 回傳維度數
func (v Vector) Dimensions() int {
	return len(v.values)
}

// At 回傳第 i 維的數值
func (v Vector) At(i int) float64 {
	return v.values[i]
}

// Values 回傳各維度數值的副本
func (v Vector) Values() []float64 {
	out := make([]float64, len(v.values))
	copy(out, v.values)
	return out
}

func (v Vector) check(right Vector) error {
	if len(v.values) != len(right.values) {
		return fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(right.values), len(v.values))
	}
	return nil
}

// Add 逐維相加
func (v Vector) Add(right Vector) (Vector, error) {
	if err := v.check(right); err != nil {
		return Vector{}, err
	}
	out := make([]float64, len(v.values))
	for i := range v.values {
		out[i] = v.values[i] + right.values[i]
	}
	return Vector{values: out}, nil
}

// Subtract 逐維相減，結果可能為負數（不做截斷）
func (v Vector) Subtract(right Vector) (Vector, error) {
	if err := v.check(right); err != nil {
		return Vector{}, err
	}
	out := make([]float64, len(v.values))
	for i := range v.values {
		out[i] = v.values[i] - right.values[i]
	}
	return Vector{values: out}, nil
}

// Divide 逐維相除，只用於計算佔比
func (v Vector) Divide(right Vector) (Vector, error) {
	if err := v.check(right); err != nil {
		return Vector{}, err
	}
	out := make([]float64, len(v.values))
	for i := range v.values {
		out[i] = v.values[i] / right.values[i]
	}
	return Vector{values: out}, nil
}

// Max 回傳最大的分量；0 維向量回傳 0
func (v Vector) Max() float64 {
	if len(v.values) == 0 {
		return 0
	}
	m := v.values[0]
	for _, x := range v.values[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// Exhausted 任一維度 <= 0 即視為容量耗盡
func (v Vector) Exhausted() bool {
	for _, x := range v.values {
		if x <= 0 {
			return true
		}
	}
	return false
}

// Positive 所有維度都 > 0
func (v Vector) Positive() bool {
	return len(v.values) > 0 && !v.Exhausted()
}

// FitsWithin 每一維都不超過 limit 的對應維度
func (v Vector) FitsWithin(limit Vector) (bool, error) {
	if err := v.check(limit); err != nil {
		return false, err
	}
	for i := range v.values {
		if v.values[i] > limit.values[i] {
			return false, nil
		}
	}
	return true, nil
}

// Negative 回傳第一個小於 -tolerance 的維度索引，沒有則回傳 -1
func (v Vector) Negative(tolerance float64) int {
	for i, x := range v.values {
		if x < -tolerance {
			return i
		}
	}
	return -1
}

// Equal 維度與每個分量都相同
func (v Vector) Equal(right Vector) bool {
	if len(v.values) != len(right.values) {
		return false
	}
	for i := range v.values {
		if v.values[i] != right.values[i] {
			return false
		}
	}
	return true
}

// String 以 [9, 18] 的格式輸出
func (v Vector) String() string {
	parts := make([]string, len(v.values))
	for i, x := range v.values {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// MarshalJSON 序列化為數字陣列
func (v Vector) MarshalJSON() ([]byte, error) {
	if v.values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.values)
}

// UnmarshalJSON 從數字陣列還原
func (v *Vector) UnmarshalJSON(data []byte) error {
	var values []float64
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	v.values = values
	return nil
}
