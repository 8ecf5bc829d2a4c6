package field

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

// applyFlagPrefix names the boolean flag that activates a top-level
// substructure of a partial update ("apply_<field>").
const applyFlagPrefix = "apply_"

// Submitter delivers a partial update to the device.
type Submitter interface {
	SubmitPartialUpdate(ctx context.Context, partial protoreflect.Message) error
}

// Result is the outcome of one command, consumed to build one acknowledgement.
type Result struct {
	Requested string
	Applied   *string
	Success   bool
	Message   *string
}

// Failed builds an unsuccessful Result carrying err's message.
func Failed(requested string, err error) Result {
	msg := err.Error()
	return Result{Requested: requested, Message: &msg}
}

// Applier turns a single string-valued command into a typed partial update
// against a writable message schema and submits it.
//
// Thread Safety: Apply is safe for concurrent use.
type Applier struct {
	schema    *Schema
	root      protoreflect.MessageDescriptor
	alias     string
	submitter Submitter
}

// ApplierOptions configures an Applier.
type ApplierOptions struct {
	// Schema indexes Root. A new index is built when nil.
	Schema *Schema

	// Root is the partial-update message type.
	Root protoreflect.MessageDescriptor

	// RootAlias is an optional leading path segment naming Root itself
	// (e.g. "dish_config"), stripped before resolution.
	RootAlias string

	// Submitter receives the built partial update.
	Submitter Submitter
}

// NewApplier creates an Applier.
func NewApplier(opts ApplierOptions) (*Applier, error) {
	if opts.Root == nil {
		return nil, fmt.Errorf("partial update root is required")
	}
	if opts.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	schema := opts.Schema
	if schema == nil {
		schema = NewSchema(opts.Root)
	}
	return &Applier{
		schema:    schema,
		root:      opts.Root,
		alias:     Canonical(opts.RootAlias),
		submitter: opts.Submitter,
	}, nil
}

// Apply resolves path, decodes raw against the leaf, submits the partial
// update and reports the outcome. It never panics or returns an error; every
// failure is folded into an unsuccessful Result.
func (a *Applier) Apply(ctx context.Context, path, raw string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Failed(raw, fmt.Errorf("applying %s: %v", Canonical(path), r))
		}
	}()

	partial, res, value, err := a.Build(path, raw)
	if err != nil {
		return Failed(raw, err)
	}

	if err := a.submitter.SubmitPartialUpdate(ctx, partial); err != nil {
		return Failed(raw, transportError(err))
	}

	applied := Text(res.Leaf, value)
	return Result{Requested: raw, Applied: &applied, Success: true}
}

// Build constructs the partial update for path=raw without submitting it.
func (a *Applier) Build(path, raw string) (protoreflect.Message, *Resolution, protoreflect.Value, error) {
	segments := a.writableSegments(path)

	res, err := a.schema.Resolve(a.root, segments)
	if err != nil {
		return nil, nil, protoreflect.Value{}, err
	}

	value, err := Decode(res.Leaf, raw)
	if err != nil {
		return nil, nil, protoreflect.Value{}, err
	}

	partial := dynamicpb.NewMessage(a.root)
	current := protoreflect.Message(partial)
	for _, fi := range res.Chain {
		current = current.Mutable(fi.Descriptor()).Message()
	}
	current.Set(res.Leaf.Descriptor(), value)

	a.setApplyFlag(partial, segments[0])

	return partial, res, value, nil
}

// writableSegments canonicalizes path and strips the root alias.
func (a *Applier) writableSegments(path string) []string {
	segments := Segments(path)
	if a.alias != "" && len(segments) > 0 && segments[0] == a.alias {
		segments = segments[1:]
	}
	return segments
}

// setApplyFlag sets "apply_<top>" on the partial update when the schema
// declares it as a singular bool.
func (a *Applier) setApplyFlag(partial protoreflect.Message, top string) {
	flag, ok := a.schema.Message(a.root).Field(applyFlagPrefix + top)
	if !ok || flag.Repeated || flag.Kind != protoreflect.BoolKind {
		return
	}
	partial.Set(flag.Descriptor(), protoreflect.ValueOfBool(true))
}

// transportError extracts a structured status code and detail when err
// carries one and wraps it as a KindTransport error.
func transportError(err error) *Error {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindTransport {
		return fe
	}
	if st, ok := status.FromError(err); ok {
		return &Error{
			Kind:   KindTransport,
			Code:   codeName(st.Code().String()),
			Detail: strings.TrimSpace(st.Message()),
			Err:    err,
		}
	}
	return &Error{Kind: KindTransport, Err: err}
}

// codeName renders a camel-case status code name in upper snake case
// ("DeadlineExceeded" → "DEADLINE_EXCEEDED").
func codeName(name string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range name {
		if prevLower && unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		prevLower = unicode.IsLower(r)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
