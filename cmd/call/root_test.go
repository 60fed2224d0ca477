package call

import "testing"

// TestSplitMethod tests the parsing of method names
func TestSplitMethod(t *testing.T) {
	tests := []struct {
		name    string
		service string
		method  string
		wantErr bool
	}{
		{name: "cqrpc.Echo/Echo", service: "cqrpc.Echo", method: "Echo"},
		{name: "pkg/svc/Call", service: "pkg/svc", method: "Call"},
		{name: "Echo", wantErr: true},
		{name: "/Echo", wantErr: true},
		{name: "cqrpc.Echo/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, method, err := splitMethod(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("splitMethod() error = %v, wantErr %v", err, tt.wantErr)
			}
			if service != tt.service || method != tt.method {
				t.Errorf("splitMethod() = %q, %q, want %q, %q", service, method, tt.service, tt.method)
			}
		})
	}
}
