package providers

import (
	"testing"

	"clipforge/internal/infra"
	"clipforge/internal/providers/genaisdk"
	"clipforge/internal/providers/veo"
)

func TestNewBackendSelectsImplementation(t *testing.T) {
	rest, err := NewBackend(&infra.Config{VeoBackend: infra.BackendREST}, nil, nil)
	if err != nil {
		t.Fatalf("rest backend: %v", err)
	}
	if _, ok := rest.(*veo.Client); !ok {
		t.Fatalf("rest backend type = %T", rest)
	}

	sdk, err := NewBackend(&infra.Config{VeoBackend: infra.BackendSDK}, nil, nil)
	if err != nil {
		t.Fatalf("sdk backend: %v", err)
	}
	if _, ok := sdk.(*genaisdk.Backend); !ok {
		t.Fatalf("sdk backend type = %T", sdk)
	}

	if _, err := NewBackend(&infra.Config{VeoBackend: "grpc"}, nil, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
