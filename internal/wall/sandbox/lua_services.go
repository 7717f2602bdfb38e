package sandbox

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shopify/go-lua"
	"github.com/atlanticdynamic/lumenwall/internal/clock"
	"github.com/atlanticdynamic/lumenwall/internal/geometry"
	"github.com/atlanticdynamic/lumenwall/internal/wall/capability"
	"github.com/atlanticdynamic/lumenwall/internal/wall/network"
	"github.com/atlanticdynamic/lumenwall/internal/wall/statestore"
	"github.com/atlanticdynamic/lumenwall/internal/wall/titlecard"
)

// pushServices pushes the services table handed to behavior constructors.
// services.locate(name) and services:locate(name) both work.
func (c *luaContext) pushServices(l *lua.State, services capability.Locator) {
	l.NewTable()
	if services == nil {
		return
	}
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "locate", Function: func(l *lua.State) int {
			name := lua.CheckString(l, argBase(l))
			v, err := services.Locate(name)
			if err != nil {
				lua.Errorf(l, "%s", err.Error())
				return 0
			}
			if !c.pushCapability(l, v) {
				lua.Errorf(l, "capability %s is not available to lua modules", name)
				return 0
			}
			return 1
		}},
	}, 0)
}

func (c *luaContext) pushCapability(l *lua.State, v any) bool {
	switch x := v.(type) {
	case *slog.Logger:
		l.PushGoFunction(func(l *lua.State) int {
			n := l.Top()
			parts := make([]string, 0, n)
			for i := 1; i <= n; i++ {
				parts = append(parts, fmt.Sprint(luaToGo(l, i, 0)))
			}
			x.Debug(strings.Join(parts, " "))
			return 0
		})
	case clock.Clock:
		l.NewTable()
		lua.SetFunctions(l, []lua.RegistryFunction{
			{Name: "now", Function: func(l *lua.State) int {
				l.PushNumber(clock.Millis(x.Now()))
				return 1
			}},
		}, 0)
	case *network.Channel:
		c.pushChannel(l, x)
	case *statestore.Store:
		l.NewTable()
		lua.SetFunctions(l, []lua.RegistryFunction{
			{Name: "get", Function: func(l *lua.State) int {
				value, ok := x.Get(lua.CheckString(l, argBase(l)))
				if !ok {
					l.PushNil()
					return 1
				}
				pushValue(l, value, 0)
				return 1
			}},
			{Name: "set", Function: func(l *lua.State) int {
				b := argBase(l)
				x.Set(lua.CheckString(l, b), luaToGo(l, b+1, 0))
				return 0
			}},
		}, 0)
	case *titlecard.API:
		l.NewTable()
		lua.SetFunctions(l, []lua.RegistryFunction{
			{Name: "setStatus", Function: func(l *lua.State) int {
				x.SetStatus(lua.CheckString(l, argBase(l)))
				return 0
			}},
		}, 0)
	case geometry.Polygon:
		pushValue(l, x, 0)
	default:
		return false
	}
	return true
}

func (c *luaContext) pushChannel(l *lua.State, ch *network.Channel) {
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "emit", Function: func(l *lua.State) int {
			b := argBase(l)
			ch.Emit(lua.CheckString(l, b), luaToGo(l, b+1, 0))
			return 0
		}},
		{Name: "on", Function: func(l *lua.State) int {
			b := argBase(l)
			event := lua.CheckString(l, b)
			lua.CheckType(l, b+1, lua.TypeFunction)

			// runs with mu held by the hook that called on()
			c.nextRef++
			key := fmt.Sprintf("lumenwall.handler.%d", c.nextRef)
			l.PushValue(b + 1)
			l.SetField(lua.RegistryIndex, key)

			ch.On(event, func(payload any) {
				c.dispatch(key, payload)
			})
			return 0
		}},
	}, 0)
}

// argBase returns the index of the first real argument, skipping self when a
// binding is called with colon syntax.
func argBase(l *lua.State) int {
	if l.TypeOf(1) == lua.TypeTable {
		return 2
	}
	return 1
}
