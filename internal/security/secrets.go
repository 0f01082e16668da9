package security

import "os"

// SecretStore resolves secret values by name. Values come from an explicit
// map first, then from the process environment.
type SecretStore struct {
	values map[string]string
	lookup func(string) (string, bool)
}

// NewEnvSecretStore reads secrets such as PYPI_API_TOKEN from the environment.
func NewEnvSecretStore() *SecretStore {
	return &SecretStore{values: map[string]string{}, lookup: os.LookupEnv}
}

// NewStaticSecretStore serves only the given values.
func NewStaticSecretStore(values map[string]string) *SecretStore {
	cp := make(map[string]string, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &SecretStore{values: cp}
}

// Lookup returns the value of a secret. Empty values count as missing.
func (s *SecretStore) Lookup(name string) (string, bool) {
	if s == nil {
		return "", false
	}
	if v, ok := s.values[name]; ok && v != "" {
		return v, true
	}
	if s.lookup != nil {
		if v, ok := s.lookup(name); ok && v != "" {
			return v, true
		}
	}
	return "", false
}
