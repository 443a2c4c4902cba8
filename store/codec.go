package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"sync"
)

var (
	ErrUnsupportedValue = errors.New("unsupported value type")
	ErrUnknownKind      = errors.New("unknown value kind")
)

const intKind = "int"

var kinds = struct {
	sync.RWMutex
	byName map[string]reflect.Type
	byType map[reflect.Type]string
}{
	byName: make(map[string]reflect.Type),
	byType: make(map[reflect.Type]string),
}

// Register makes values of sample's type storable in stores that serialize
// their entries. Integers (int64) are always supported and need no registration.
func Register(kind string, sample interface{}) {
	if kind == intKind {
		panic(fmt.Sprintf("store: kind %q is reserved", kind))
	}

	t := reflect.TypeOf(sample)

	kinds.Lock()
	defer kinds.Unlock()

	if prev, ok := kinds.byName[kind]; ok && prev != t {
		panic(fmt.Sprintf("store: kind %q already registered for %s", kind, prev))
	}

	kinds.byName[kind] = t
	kinds.byType[t] = kind
}

func encode(value interface{}) (kind, data string, err error) {
	if v, ok := value.(int64); ok {
		return intKind, strconv.FormatInt(v, 10), nil
	}

	kinds.RLock()
	kind, ok := kinds.byType[reflect.TypeOf(value)]
	kinds.RUnlock()

	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedValue, typeName(value))
	}

	b, err := json.Marshal(value)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode %s value: %w", kind, err)
	}

	return kind, string(b), nil
}

func decode(kind, data string) (interface{}, error) {
	if kind == intKind {
		v, err := strconv.ParseInt(data, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode integer value: %w", err)
		}

		return v, nil
	}

	kinds.RLock()
	t, ok := kinds.byName[kind]
	kinds.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	p := reflect.New(t)
	if err := json.Unmarshal([]byte(data), p.Interface()); err != nil {
		return nil, fmt.Errorf("failed to decode %s value: %w", kind, err)
	}

	return p.Elem().Interface(), nil
}

func typeName(v interface{}) string {
	if v == nil {
		return "nil"
	}

	return reflect.TypeOf(v).String()
}
