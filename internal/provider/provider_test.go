package provider

import "testing"

func TestInferModelName(t *testing.T) {
	tests := []struct {
		deployment string
		want       string
	}{
		{"oai-smartncc-search-gpt-4o-mini-01", "gpt-4o-mini"},
		{"oai-smartncc-search-gpt-4o-01", "gpt-4o"},
		{"GPT-4O", "gpt-4o"},
		{"text-embedding-ada-002", "text-embedding-ada-002"},
		{"chat-gpt-4-turbo", "gpt-4-turbo"},
		{"reasoning-o3-mini", "o3-mini"},
		{"my-custom-finetune", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.deployment, func(t *testing.T) {
			if got := InferModelName(tt.deployment); got != tt.want {
				t.Errorf("InferModelName(%q) = %q, want %q", tt.deployment, got, tt.want)
			}
		})
	}
}

func TestDeployments_Lookup(t *testing.T) {
	d := NewDeployments([]Deployment{
		{Name: "Chat", ModelName: "gpt-4o"},
		{Name: "embed", ModelName: "text-embedding-3-small"},
		{Name: "CHAT", ModelName: "gpt-4o-mini"},
	})

	if len(d) != 2 {
		t.Fatalf("Expected 2 deployments, got %d", len(d))
	}
	got, ok := d.Lookup("chat")
	if !ok {
		t.Fatal("Lookup(chat) not found")
	}
	// Later entries replace earlier ones with the same name
	if got.ModelName != "gpt-4o-mini" {
		t.Errorf("Lookup(chat) model = %q, want gpt-4o-mini", got.ModelName)
	}
	if _, ok := d.Lookup("missing"); ok {
		t.Error("Lookup(missing) should fail")
	}

	var empty Deployments
	if _, ok := empty.Lookup("chat"); ok {
		t.Error("Lookup on nil map should fail")
	}
}
