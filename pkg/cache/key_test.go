package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "gene set",
			key:  GeneSetKey("0b6b9f0e-4d43-4c2e-9c7e-0f0d0c1e2f3a"),
			want: "enrich:usergeneset:0b6b9f0e-4d43-4c2e-9c7e-0f0d0c1e2f3a",
		},
		{
			name: "kind only",
			key:  Key{Kind: "usergeneset"},
			want: "enrich:usergeneset",
		},
		{
			name: "id whitespace trimmed",
			key:  GeneSetKey(" abc "),
			want: "enrich:usergeneset:abc",
		},
		{
			name: "empty key",
			key:  Key{},
			want: "enrich",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
