package field

import "google.golang.org/protobuf/reflect/protoreflect"

// Resolution is the outcome of resolving a path against a message schema.
type Resolution struct {
	// Leaf is the field named by the final segment.
	Leaf *FieldInfo

	// Owner is the message type that declares Leaf.
	Owner *MessageInfo

	// Chain holds the intermediate message fields from root to Owner.
	Chain []*FieldInfo
}

// Resolve navigates segments from root to a single writable leaf.
//
// Every segment but the last must name a singular message field. The last
// segment must name an existing non-repeated field of any kind. Failures are
// KindPath errors carrying the offending segment.
func (s *Schema) Resolve(root protoreflect.MessageDescriptor, segments []string) (*Resolution, error) {
	if len(segments) == 0 {
		return nil, pathError(ReasonEmpty, "")
	}

	current := s.Message(root)
	chain := make([]*FieldInfo, 0, len(segments)-1)

	for _, seg := range segments[:len(segments)-1] {
		fi, ok := current.Field(seg)
		if !ok {
			return nil, pathError(ReasonNotFound, seg)
		}
		if fi.Repeated {
			return nil, pathError(ReasonRepeated, seg)
		}
		if !fi.IsMessage() {
			return nil, pathError(ReasonNotMessage, seg)
		}
		chain = append(chain, fi)
		current = s.Message(fi.Message)
	}

	leafName := segments[len(segments)-1]
	leaf, ok := current.Field(leafName)
	if !ok {
		return nil, pathError(ReasonNotFound, leafName)
	}
	if leaf.Repeated {
		return nil, pathError(ReasonRepeated, leafName)
	}

	return &Resolution{Leaf: leaf, Owner: current, Chain: chain}, nil
}
