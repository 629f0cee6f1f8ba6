// Package people provides sample prototypes: Person, Array and Chat.
package people

import (
	"fmt"
	"strings"

	"graphsync/internal/core"
)

const (
	PersonPrototype = "Person"
	ChatPrototype   = "Chat"
)

// Plugin registers the people prototypes.
type Plugin struct{}

// New constructs a people plugin instance.
func New() Plugin { return Plugin{} }

// Name returns the plugin identifier.
func (Plugin) Name() string { return "people" }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register adds Array, Person and Chat.
func (Plugin) Register(registry *core.Registry) error {
	for _, p := range []core.Prototype{arrayPrototype(), personPrototype(), chatPrototype()} {
		if err := registry.Register(p); err != nil {
			return err
		}
	}
	return nil
}

func arrayPrototype() core.Prototype {
	return core.Prototype{
		Name:  core.SequencePrototype,
		Shape: core.ShapeSequence,
		Methods: map[string]core.Method{
			"push": func(d *core.Data, args ...any) (any, error) {
				if err := d.Append(args...); err != nil {
					return nil, err
				}
				return d.Len(), nil
			},
			"get": func(d *core.Data, args ...any) (any, error) {
				i, err := intArg(args, 0)
				if err != nil {
					return nil, err
				}
				return d.Index(i)
			},
			"size": func(d *core.Data, _ ...any) (any, error) { return d.Len(), nil },
		},
	}
}

func personPrototype() core.Prototype {
	return core.Prototype{
		Name:  PersonPrototype,
		Shape: core.ShapeObject,
		Methods: map[string]core.Method{
			"fullName": func(d *core.Data, _ ...any) (any, error) {
				name, _ := d.Field("name")
				surname, _ := d.Field("surname")
				return strings.TrimSpace(fmt.Sprintf("%s %s", stringOr(name), stringOr(surname))), nil
			},
			"addFriend": func(d *core.Data, args ...any) (any, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("addFriend takes one argument, got %d", len(args))
				}
				return appendTo(d, "friends", args[0])
			},
			"friendCount": func(d *core.Data, _ ...any) (any, error) {
				return lengthOf(d, "friends"), nil
			},
		},
		Validate: func(d *core.Data) error {
			for _, field := range []string{"name", "surname"} {
				if v, ok := d.Field(field); ok && v != nil {
					if _, isString := v.(string); !isString {
						return fmt.Errorf("person %s must be a string, got %T", field, v)
					}
				}
			}
			return nil
		},
	}
}

func chatPrototype() core.Prototype {
	return core.Prototype{
		Name:  ChatPrototype,
		Shape: core.ShapeObject,
		Methods: map[string]core.Method{
			"post": func(d *core.Data, args ...any) (any, error) {
				if len(args) != 2 {
					return nil, fmt.Errorf("post takes author and text, got %d arguments", len(args))
				}
				text, ok := args[1].(string)
				if !ok {
					return nil, fmt.Errorf("message text must be a string, got %T", args[1])
				}
				return appendTo(d, "messages", map[string]any{"author": args[0], "text": text})
			},
			"join": func(d *core.Data, args ...any) (any, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("join takes one participant, got %d", len(args))
				}
				return appendTo(d, "participants", args[0])
			},
			"messageCount": func(d *core.Data, _ ...any) (any, error) {
				return lengthOf(d, "messages"), nil
			},
		},
	}
}

// appendTo adds v to the list held in field. The list is a plain slice until
// the first save wraps it into its own Array entity.
func appendTo(d *core.Data, field string, v any) (int, error) {
	current, _ := d.Field(field)
	switch list := current.(type) {
	case nil:
		return 1, d.SetField(field, []any{v})
	case []any:
		next := append(list, v)
		return len(next), d.SetField(field, next)
	case *core.Entity:
		if err := list.Set(list.Size(), v); err != nil {
			return 0, err
		}
		return list.Size(), nil
	default:
		return 0, fmt.Errorf("%s holds %T, not a list", field, current)
	}
}

func lengthOf(d *core.Data, field string) int {
	switch list := fieldValue(d, field).(type) {
	case []any:
		return len(list)
	case *core.Entity:
		return list.Size()
	default:
		return 0
	}
}

func fieldValue(d *core.Data, field string) any {
	v, _ := d.Field(field)
	return v
}

func stringOr(v any) string {
	s, _ := v.(string)
	return s
}

func intArg(args []any, i int) (int, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("missing argument %d", i)
	}
	switch n := args[i].(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("argument %d must be a number, got %T", i, args[i])
	}
}
