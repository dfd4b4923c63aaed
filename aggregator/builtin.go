package aggregator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/rulego/streamcep/types"
	"github.com/rulego/streamcep/utils/codec"
	"github.com/spf13/cast"
)

type AggregateType string

const (
	Sum           AggregateType = "sum"
	Count         AggregateType = "count"
	Avg           AggregateType = "avg"
	Max           AggregateType = "max"
	Min           AggregateType = "min"
	DistinctCount AggregateType = "distinctcount"
)

var (
	// ErrNotNumeric rejects a non-numeric value passed to a numeric aggregate.
	ErrNotNumeric = errors.New("value is not numeric")
	// ErrOverflow rejects an integral sum leaving the int64 range.
	ErrOverflow = errors.New("integer overflow")
	// ErrNotPresent rejects the expiry of a value the accumulator never held.
	ErrNotPresent = errors.New("expired value was never inserted")
)

// Function is an incremental accumulator. Insert and Expire leave the
// accumulator unchanged when they return an error. Null values are skipped.
type Function interface {
	Insert(v interface{}) error
	Expire(v interface{}) error
	// Result is the current value, typed as OutputType.
	Result() interface{}
	OutputType() types.AttrType
	Reset()
	MarshalState() ([]byte, error)
	UnmarshalState(data []byte) error
}

// Constructor builds a Function for the given input attribute type. The
// input type is empty for count without an attribute.
type Constructor func(input types.AttrType) (Function, error)

var (
	aggregatorRegistry = make(map[string]Constructor)
	registryMutex      sync.RWMutex
)

func init() {
	Register(string(Sum), newSum)
	Register(string(Count), func(types.AttrType) (Function, error) { return &CountAggregator{}, nil })
	Register(string(Avg), newAvg)
	Register(string(Min), func(t types.AttrType) (Function, error) { return newExtreme(Min, t) })
	Register(string(Max), func(t types.AttrType) (Function, error) { return newExtreme(Max, t) })
	Register(string(DistinctCount), func(types.AttrType) (Function, error) {
		return &DistinctCountAggregator{values: make(map[string]int64)}, nil
	})
}

// Register 添加自定义聚合器到全局注册表，同名时覆盖
func Register(name string, constructor Constructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	aggregatorRegistry[name] = constructor
}

// Create builds the named aggregate for the input type.
func Create(name string, input types.AttrType) (Function, error) {
	registryMutex.RLock()
	constructor, exists := aggregatorRegistry[name]
	registryMutex.RUnlock()
	if !exists {
		return nil, fmt.Errorf("unsupported aggregator type: %s", name)
	}
	return constructor(input)
}

// SumAggregator sums integral input as int64 and other numbers as float64.
type SumAggregator struct {
	integral bool
	state    sumState
}

type sumState struct {
	I     int64   `codec:"i"`
	F     float64 `codec:"f"`
	Count int64   `codec:"c"`
}

func newSum(t types.AttrType) (Function, error) {
	if !t.IsNumeric() {
		return nil, fmt.Errorf("sum requires a numeric attribute, got %q", t)
	}
	return &SumAggregator{integral: t.IsIntegral()}, nil
}

func (s *SumAggregator) Insert(v interface{}) error {
	return s.add(v, 1)
}

func (s *SumAggregator) Expire(v interface{}) error {
	return s.add(v, -1)
}

func (s *SumAggregator) add(v interface{}, sign int64) error {
	if v == nil {
		return nil
	}
	if s.integral {
		i, err := toInt64(v)
		if err != nil {
			return err
		}
		next, ok := addInt64(s.state.I, sign*i)
		if !ok || (sign < 0 && i == math.MinInt64) {
			return ErrOverflow
		}
		s.state.I = next
	} else {
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		s.state.F += float64(sign) * f
	}
	s.state.Count += sign
	return nil
}

func (s *SumAggregator) Result() interface{} {
	if s.integral {
		return s.state.I
	}
	return s.state.F
}

func (s *SumAggregator) OutputType() types.AttrType {
	if s.integral {
		return types.TypeLong
	}
	return types.TypeDouble
}

func (s *SumAggregator) Reset() {
	s.state = sumState{}
}

func (s *SumAggregator) MarshalState() ([]byte, error) {
	return codec.Encode(s.state)
}

func (s *SumAggregator) UnmarshalState(data []byte) error {
	var st sumState
	if err := codec.Decode(data, &st); err != nil {
		return err
	}
	s.state = st
	return nil
}

// CountAggregator counts notifications, null values included.
type CountAggregator struct {
	count int64
}

func (c *CountAggregator) Insert(_ interface{}) error {
	c.count++
	return nil
}

func (c *CountAggregator) Expire(_ interface{}) error {
	if c.count == 0 {
		return ErrNotPresent
	}
	c.count--
	return nil
}

func (c *CountAggregator) Result() interface{}        { return c.count }
func (c *CountAggregator) OutputType() types.AttrType { return types.TypeLong }
func (c *CountAggregator) Reset()                     { c.count = 0 }

func (c *CountAggregator) MarshalState() ([]byte, error) {
	return codec.Encode(c.count)
}

func (c *CountAggregator) UnmarshalState(data []byte) error {
	var n int64
	if err := codec.Decode(data, &n); err != nil {
		return err
	}
	c.count = n
	return nil
}

// AvgAggregator averages numbers as float64; the result is null while empty.
type AvgAggregator struct {
	state sumState
}

func newAvg(t types.AttrType) (Function, error) {
	if !t.IsNumeric() {
		return nil, fmt.Errorf("avg requires a numeric attribute, got %q", t)
	}
	return &AvgAggregator{}, nil
}

func (a *AvgAggregator) Insert(v interface{}) error {
	if v == nil {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return err
	}
	a.state.F += f
	a.state.Count++
	return nil
}

func (a *AvgAggregator) Expire(v interface{}) error {
	if v == nil {
		return nil
	}
	f, err := toFloat64(v)
	if err != nil {
		return err
	}
	if a.state.Count == 0 {
		return ErrNotPresent
	}
	a.state.F -= f
	a.state.Count--
	if a.state.Count == 0 {
		// drop accumulated rounding error
		a.state.F = 0
	}
	return nil
}

func (a *AvgAggregator) Result() interface{} {
	if a.state.Count == 0 {
		return nil
	}
	return a.state.F / float64(a.state.Count)
}

func (a *AvgAggregator) OutputType() types.AttrType { return types.TypeDouble }
func (a *AvgAggregator) Reset()                     { a.state = sumState{} }

func (a *AvgAggregator) MarshalState() ([]byte, error) {
	return codec.Encode(a.state)
}

func (a *AvgAggregator) UnmarshalState(data []byte) error {
	var st sumState
	if err := codec.Decode(data, &st); err != nil {
		return err
	}
	a.state = st
	return nil
}

// ExtremeAggregator implements min and max over a multiset of the values
// currently held, so expiring the extreme reveals the next one.
type ExtremeAggregator struct {
	kind  AggregateType
	input types.AttrType
	ints  *multiset[int64]
	flts  *multiset[float64]
	strs  *multiset[string]
}

func newExtreme(kind AggregateType, t types.AttrType) (Function, error) {
	e := &ExtremeAggregator{kind: kind, input: t}
	switch {
	case t.IsIntegral():
		e.ints = newMultiset[int64]()
	case t.IsNumeric():
		e.flts = newMultiset[float64]()
	case t == types.TypeString:
		e.strs = newMultiset[string]()
	default:
		return nil, fmt.Errorf("%s requires a numeric or string attribute, got %q", kind, t)
	}
	return e, nil
}

func (e *ExtremeAggregator) Insert(v interface{}) error {
	return e.apply(v, true)
}

func (e *ExtremeAggregator) Expire(v interface{}) error {
	return e.apply(v, false)
}

func (e *ExtremeAggregator) apply(v interface{}, insert bool) error {
	if v == nil {
		return nil
	}
	switch {
	case e.ints != nil:
		i, err := toInt64(v)
		if err != nil {
			return err
		}
		return e.ints.apply(i, insert)
	case e.flts != nil:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		return e.flts.apply(f, insert)
	default:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%s expects a string, got %T", e.kind, v)
		}
		return e.strs.apply(s, insert)
	}
}

func (e *ExtremeAggregator) Result() interface{} {
	wantMax := e.kind == Max
	switch {
	case e.ints != nil:
		v, ok := e.ints.extreme(wantMax)
		if !ok {
			return nil
		}
		if e.input == types.TypeInt {
			return int32(v)
		}
		return v
	case e.flts != nil:
		v, ok := e.flts.extreme(wantMax)
		if !ok {
			return nil
		}
		if e.input == types.TypeFloat {
			return float32(v)
		}
		return v
	default:
		v, ok := e.strs.extreme(wantMax)
		if !ok {
			return nil
		}
		return v
	}
}

func (e *ExtremeAggregator) OutputType() types.AttrType { return e.input }

func (e *ExtremeAggregator) Reset() {
	switch {
	case e.ints != nil:
		e.ints = newMultiset[int64]()
	case e.flts != nil:
		e.flts = newMultiset[float64]()
	default:
		e.strs = newMultiset[string]()
	}
}

type extremeState struct {
	Ints   []int64   `codec:"i,omitempty"`
	Floats []float64 `codec:"f,omitempty"`
	Strs   []string  `codec:"s,omitempty"`
	Counts []int64   `codec:"c"`
}

func (e *ExtremeAggregator) MarshalState() ([]byte, error) {
	var st extremeState
	switch {
	case e.ints != nil:
		st.Ints, st.Counts = e.ints.entries()
	case e.flts != nil:
		st.Floats, st.Counts = e.flts.entries()
	default:
		st.Strs, st.Counts = e.strs.entries()
	}
	return codec.Encode(st)
}

func (e *ExtremeAggregator) UnmarshalState(data []byte) error {
	var st extremeState
	if err := codec.Decode(data, &st); err != nil {
		return err
	}
	var err error
	switch {
	case e.ints != nil:
		var m *multiset[int64]
		if m, err = multisetOf(st.Ints, st.Counts); err == nil {
			e.ints = m
		}
	case e.flts != nil:
		var m *multiset[float64]
		if m, err = multisetOf(st.Floats, st.Counts); err == nil {
			e.flts = m
		}
	default:
		var m *multiset[string]
		if m, err = multisetOf(st.Strs, st.Counts); err == nil {
			e.strs = m
		}
	}
	return err
}

// DistinctCountAggregator counts distinct non-null values by their string form.
type DistinctCountAggregator struct {
	values map[string]int64
}

func (d *DistinctCountAggregator) Insert(v interface{}) error {
	if v == nil {
		return nil
	}
	d.values[cast.ToString(v)]++
	return nil
}

func (d *DistinctCountAggregator) Expire(v interface{}) error {
	if v == nil {
		return nil
	}
	k := cast.ToString(v)
	n, ok := d.values[k]
	if !ok {
		return ErrNotPresent
	}
	if n == 1 {
		delete(d.values, k)
	} else {
		d.values[k] = n - 1
	}
	return nil
}

func (d *DistinctCountAggregator) Result() interface{}        { return int64(len(d.values)) }
func (d *DistinctCountAggregator) OutputType() types.AttrType { return types.TypeLong }
func (d *DistinctCountAggregator) Reset()                     { d.values = make(map[string]int64) }

func (d *DistinctCountAggregator) MarshalState() ([]byte, error) {
	return codec.Encode(d.values)
}

func (d *DistinctCountAggregator) UnmarshalState(data []byte) error {
	values := make(map[string]int64)
	if err := codec.Decode(data, &values); err != nil {
		return err
	}
	d.values = values
	return nil
}

type ordered interface {
	~int64 | ~float64 | ~string
}

// multiset counts occurrences and caches nothing; extreme scans the
// distinct values, which stay few for windowed input.
type multiset[K ordered] struct {
	counts map[K]int64
}

func newMultiset[K ordered]() *multiset[K] {
	return &multiset[K]{counts: make(map[K]int64)}
}

func multisetOf[K ordered](keys []K, counts []int64) (*multiset[K], error) {
	if len(keys) != len(counts) {
		return nil, fmt.Errorf("corrupt multiset state: %d values, %d counts", len(keys), len(counts))
	}
	m := newMultiset[K]()
	for i, k := range keys {
		if counts[i] <= 0 {
			return nil, fmt.Errorf("corrupt multiset state: count %d", counts[i])
		}
		m.counts[k] = counts[i]
	}
	return m, nil
}

func (m *multiset[K]) apply(k K, insert bool) error {
	if insert {
		m.counts[k]++
		return nil
	}
	n, ok := m.counts[k]
	if !ok {
		return ErrNotPresent
	}
	if n == 1 {
		delete(m.counts, k)
	} else {
		m.counts[k] = n - 1
	}
	return nil
}

func (m *multiset[K]) extreme(wantMax bool) (K, bool) {
	var best K
	found := false
	for k := range m.counts {
		if !found || (wantMax && k > best) || (!wantMax && k < best) {
			best, found = k, true
		}
	}
	return best, found
}

// entries lists the multiset in key order so snapshots are deterministic.
func (m *multiset[K]) entries() ([]K, []int64) {
	keys := make([]K, 0, len(m.counts))
	for k := range m.counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	counts := make([]int64, len(keys))
	for i, k := range keys {
		counts[i] = m.counts[k]
	}
	return keys, counts
}

func toInt64(v interface{}) (int64, error) {
	if !types.IsNumber(v) {
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
	switch n := v.(type) {
	case float32, float64:
		f := cast.ToFloat64(n)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, fmt.Errorf("%w: %v is not a whole number", ErrNotNumeric, v)
		}
		return int64(f), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, ErrOverflow
		}
	}
	return cast.ToInt64E(v)
}

func toFloat64(v interface{}) (float64, error) {
	if !types.IsNumber(v) {
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
	return cast.ToFloat64E(v)
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (c > a) != (b > 0) {
		return c, false
	}
	return c, true
}
