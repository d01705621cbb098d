// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package trace

import (
	"fmt"
	"time"
)

// MetricValue is an immutable key/value pair ready to be folded into a span's
// metadata. The value is one of the uniform wire scalar types: string,
// int64, float64 or bool.
type MetricValue struct {
	Key   string
	Value interface{}
}

// Metric coerces a typed application value into a uniform wire-ready
// MetricValue. It is total over every supported scalar source type and has
// no failure mode; unsupported types are formatted into their string
// representation.
func Metric(key string, value interface{}) MetricValue {
	switch v := value.(type) {
	case string:
		return MetricValue{Key: key, Value: v}
	case bool:
		return MetricValue{Key: key, Value: v}
	case int:
		return MetricValue{Key: key, Value: int64(v)}
	case int8:
		return MetricValue{Key: key, Value: int64(v)}
	case int16:
		return MetricValue{Key: key, Value: int64(v)}
	case int32:
		return MetricValue{Key: key, Value: int64(v)}
	case int64:
		return MetricValue{Key: key, Value: v}
	case uint:
		return MetricValue{Key: key, Value: int64(v)}
	case uint8:
		return MetricValue{Key: key, Value: int64(v)}
	case uint16:
		return MetricValue{Key: key, Value: int64(v)}
	case uint32:
		return MetricValue{Key: key, Value: int64(v)}
	case uint64:
		return MetricValue{Key: key, Value: int64(v)}
	case float32:
		return MetricValue{Key: key, Value: float64(v)}
	case float64:
		return MetricValue{Key: key, Value: v}
	case []byte:
		return MetricValue{Key: key, Value: string(v)}
	case time.Duration:
		return MetricValue{Key: key, Value: int64(v)}
	case fmt.Stringer:
		return MetricValue{Key: key, Value: v.String()}
	default:
		return MetricValue{Key: key, Value: fmt.Sprintf("%v", value)}
	}
}
