package reload

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies which part of the application surface an element occupies.
type Kind uint8

const (
	KindRoute Kind = iota + 1
	KindMiddleware
	KindBeforeFilter
	KindAfterFilter
	KindErrorHandler
	KindInlineTemplates
)

func (k Kind) String() string {
	switch k {
	case KindRoute:
		return "route"
	case KindMiddleware:
		return "middleware"
	case KindBeforeFilter:
		return "before_filter"
	case KindAfterFilter:
		return "after_filter"
	case KindErrorHandler:
		return "error_handler"
	case KindInlineTemplates:
		return "inline_templates"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Element describes one logical thing a definition file installed into the
// application: a route, a middleware entry, a filter, an error handler, or
// the presence of inline templates. Elements are immutable values; the
// payload of each concrete type is exactly what the host needs to remove
// the installed artifact again.
//
// The set of implementations is closed: every kind has one concrete type
// and the deactivation dispatch handles all of them.
type Element interface {
	Kind() Kind
	element()
}

// RouteElement identifies a handler installed for a verb and path signature.
type RouteElement struct {
	Verb      string
	Signature string
}

func (RouteElement) Kind() Kind { return KindRoute }
func (RouteElement) element() {}

// MiddlewareElement identifies an entry in the middleware chain by its
// registered ref and arguments.
type MiddlewareElement struct {
	Ref  string
	Args []string
}

func (MiddlewareElement) Kind() Kind { return KindMiddleware }
func (MiddlewareElement) element() {}

// BeforeFilterElement identifies a before filter by id.
type BeforeFilterElement struct {
	ID string
}

func (BeforeFilterElement) Kind() Kind { return KindBeforeFilter }
func (BeforeFilterElement) element() {}

// AfterFilterElement identifies an after filter by id.
type AfterFilterElement struct {
	ID string
}

func (AfterFilterElement) Kind() Kind { return KindAfterFilter }
func (AfterFilterElement) element() {}

// ErrorHandlerElement identifies the handler installed for a status code.
// The id distinguishes it from a handler a later registration may have
// installed for the same code.
type ErrorHandlerElement struct {
	Code int
	ID   string
}

func (ErrorHandlerElement) Kind() Kind { return KindErrorHandler }
func (ErrorHandlerElement) element() {}

// InlineTemplatesElement marks that the defining file carries inline
// templates. It has no payload; the watcher path identifies the source.
type InlineTemplatesElement struct{}

func (InlineTemplatesElement) Kind() Kind { return KindInlineTemplates }
func (InlineTemplatesElement) element() {}

// ErrUnresolvedSource is returned when an element is registered without a
// resolvable defining file. Attributing such an element to a guessed path
// would deactivate unrelated elements on reload, so registration fails
// instead.
var ErrUnresolvedSource = errors.New("reload: element has no resolvable defining file")

// Host is the application runtime the reload engine drives. Removals must
// be idempotent: removing an artifact that is no longer installed is a
// no-op, not an error. RemoveErrorHandler only takes effect when the
// handler installed for the code is still the one identified by id.
type Host interface {
	RemoveRoute(verb, signature string)
	RemoveMiddleware(ref string, args []string)
	RemoveBeforeFilter(id string)
	RemoveAfterFilter(id string)
	RemoveErrorHandler(code int, id string)

	// RefreshInlineTemplates re-reads the inline template section of path.
	RefreshInlineTemplates(ctx context.Context, path string) error

	// MarkUnloaded clears path from the loaded-file bookkeeping so a
	// subsequent LoadFile replays its definitions.
	MarkUnloaded(path string)

	// LoadFile executes the definitions in path, re-registering its
	// elements through the Observer the host was composed with.
	LoadFile(ctx context.Context, path string) error
}

// Observer receives element registrations from an instrumented host. The
// Registry implements it; hosts are composed with one explicitly instead
// of having their installation methods wrapped behind their back.
type Observer interface {
	Watch(path string, el Element) error
	Ignore(path string) error
}

// deactivate removes the installed artifact identified by el from the
// host. Inline-template elements are refreshed by the coordinator ahead
// of deactivation, so there is nothing to remove for them here.
func deactivate(h Host, el Element) error {
	switch e := el.(type) {
	case RouteElement:
		h.RemoveRoute(e.Verb, e.Signature)
	case MiddlewareElement:
		h.RemoveMiddleware(e.Ref, e.Args)
	case BeforeFilterElement:
		h.RemoveBeforeFilter(e.ID)
	case AfterFilterElement:
		h.RemoveAfterFilter(e.ID)
	case ErrorHandlerElement:
		h.RemoveErrorHandler(e.Code, e.ID)
	case InlineTemplatesElement:
	default:
		return fmt.Errorf("reload: no deactivation for element kind %s", el.Kind())
	}
	return nil
}
