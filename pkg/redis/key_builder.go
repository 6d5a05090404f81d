package redis

import "strings"

// KeyBuilder builds Redis keys following the namespace:context:entity
// convention used across the project.
type KeyBuilder struct {
	namespace string
	context   string
}

// NewKeyBuilder creates a KeyBuilder with the given namespace and
// context, both lowercased.
func NewKeyBuilder(namespace, context string) *KeyBuilder {
	return &KeyBuilder{
		namespace: strings.ToLower(namespace),
		context:   strings.ToLower(context),
	}
}

// Build creates a key. An empty attribute yields the three-part form.
func (kb *KeyBuilder) Build(entity, attribute string) string {
	parts := []string{
		kb.namespace,
		kb.context,
		strings.ToLower(entity),
	}
	if attribute != "" {
		parts = append(parts, strings.ToLower(attribute))
	}
	return strings.Join(parts, ":")
}

// BuildPattern creates a glob pattern for key scans. An empty pattern
// matches everything under the entity.
func (kb *KeyBuilder) BuildPattern(entity, pattern string) string {
	if pattern == "" {
		pattern = "*"
	}
	parts := []string{
		kb.namespace,
		kb.context,
		strings.ToLower(entity),
		pattern,
	}
	return strings.Join(parts, ":")
}

// Parse splits a key back into its components.
func (kb *KeyBuilder) Parse(key string) map[string]string {
	parts := strings.Split(key, ":")
	result := make(map[string]string)
	if len(parts) >= 1 {
		result["namespace"] = parts[0]
	}
	if len(parts) >= 2 {
		result["context"] = parts[1]
	}
	if len(parts) >= 3 {
		result["entity"] = parts[2]
	}
	if len(parts) >= 4 {
		result["attribute"] = strings.Join(parts[3:], ":")
	}
	return result
}
