package sandbox

import (
	"fmt"
	"math"
	"time"

	"github.com/Shopify/go-lua"
	"github.com/atlanticdynamic/lumenwall/internal/clock"
	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/wall/statestore"
)

const maxConvertDepth = 32

// pushValue pushes a Go value onto the lua stack. Values with no lua
// equivalent are pushed as their fmt.Sprint form.
func pushValue(l *lua.State, v any, depth int) {
	if depth > maxConvertDepth {
		l.PushNil()
		return
	}

	switch x := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(x)
	case string:
		l.PushString(x)
	case int:
		l.PushInteger(x)
	case int32:
		l.PushInteger(int(x))
	case int64:
		l.PushInteger(int(x))
	case uint32:
		l.PushInteger(int(x))
	case uint64:
		l.PushNumber(float64(x))
	case float32:
		l.PushNumber(float64(x))
	case float64:
		l.PushNumber(x)
	case time.Time:
		l.PushNumber(clock.Millis(x))
	case time.Duration:
		l.PushNumber(float64(x) / float64(time.Millisecond))
	case []any:
		l.CreateTable(len(x), 0)
		for i, e := range x {
			pushValue(l, e, depth+1)
			l.RawSetInt(-2, i+1)
		}
	case []string:
		l.CreateTable(len(x), 0)
		for i, e := range x {
			l.PushString(e)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(x))
		for k, e := range x {
			pushValue(l, e, depth+1)
			l.SetField(-2, k)
		}
	case map[string]string:
		l.CreateTable(0, len(x))
		for k, e := range x {
			l.PushString(e)
			l.SetField(-2, k)
		}
	case statestore.Update:
		pushValue(l, map[string]any{"key": x.Key, "value": x.Value}, depth+1)
	case geometry.Point:
		pushValue(l, pointValue(x), depth+1)
	case geometry.Rect:
		pushValue(l, rectValue(x), depth+1)
	case geometry.Polygon:
		pushValue(l, polygonValue(x), depth+1)
	default:
		l.PushString(fmt.Sprint(x))
	}
}

// luaToGo converts the value at index. Tables whose keys are exactly 1..n
// become []any, every other table becomes map[string]any.
func luaToGo(l *lua.State, index int, depth int) any {
	if depth > maxConvertDepth {
		return nil
	}
	switch l.TypeOf(index) {
	case lua.TypeString:
		value, _ := l.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := l.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index, depth)
	default:
		return nil
	}
}

func tableToGo(l *lua.State, index int, depth int) any {
	index = l.AbsIndex(index)

	isArray := true
	maxIndex := 0
	count := 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				maxIndex = max(maxIndex, idx)
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			result = append(result, luaToGo(l, -1, depth+1))
			l.Pop(1)
		}
		return result
	}
	return tableToMap(l, index, depth)
}

func tableToMap(l *lua.State, index int, depth int) map[string]any {
	result := make(map[string]any)
	l.PushNil()
	for l.Next(index) {
		var key string
		switch l.TypeOf(-2) {
		case lua.TypeString:
			key, _ = l.ToString(-2)
		case lua.TypeNumber:
			// ToString would convert the key in place and break Next
			n, _ := l.ToNumber(-2)
			key = fmt.Sprint(normalizeNumber(n))
		default:
			l.Pop(1)
			continue
		}
		result[key] = luaToGo(l, -1, depth+1)
		l.Pop(1)
	}
	return result
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && math.Abs(value) < 1<<53 {
		return int(value)
	}
	return value
}

func pointValue(p geometry.Point) map[string]any {
	return map[string]any{"x": p.X, "y": p.Y}
}

func rectValue(r geometry.Rect) map[string]any {
	return map[string]any{"x": r.X, "y": r.Y, "w": r.W, "h": r.H}
}

func polygonValue(p geometry.Polygon) map[string]any {
	pts := p.Points()
	points := make([]any, len(pts))
	for i, pt := range pts {
		points[i] = pointValue(pt)
	}
	return map[string]any{"points": points, "extents": rectValue(p.Extents())}
}
