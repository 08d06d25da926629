package provider

import (
	"bytes"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/af-corp/model-proxy/internal/config"
)

func TestBuild_NoCredentials(t *testing.T) {
	_, err := Build(config.ProvidersConfig{})
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestBuild_DisabledProviderIsNotCredential(t *testing.T) {
	off := false
	_, err := Build(config.ProvidersConfig{
		Kimi: config.ProviderConfig{APIKey: "k", Enabled: &off},
	})
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders when the only keyed provider is disabled, got %v", err)
	}
}

func TestBuild_SkipsProvidersWithoutKey(t *testing.T) {
	reg, err := Build(config.ProvidersConfig{
		Zhipu: config.ProviderConfig{APIKey: "zk"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := reg.SupportedModels(); !reflect.DeepEqual(got, []string{"glm-4.5"}) {
		t.Errorf("expected [glm-4.5], got %v", got)
	}
	if _, ok := reg.Resolve("kimi-k2-0905-preview"); ok {
		t.Error("kimi model must not resolve without a key")
	}
}

func TestBuild_AllProviders(t *testing.T) {
	reg, err := Build(config.ProvidersConfig{
		Zhipu:  config.ProviderConfig{APIKey: "zk"},
		Kimi:   config.ProviderConfig{APIKey: "kk", BaseURL: "https://kimi.example/v1/"},
		Google: config.ProviderConfig{APIKey: "gk"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"glm-4.5", "kimi-k2-0905-preview", "gemini-2.5-pro"}
	if got := reg.SupportedModels(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if reg.Len() != 3 {
		t.Errorf("expected 3 models, got %d", reg.Len())
	}

	tests := []struct {
		model         string
		provider      Kind
		upstreamModel string
		chatURL       string
		keepAlive     bool
	}{
		{"glm-4.5", KindZhipu, "glm-4-0520", "https://open.bigmodel.cn/api/paas/v4/chat/completions", false},
		{"kimi-k2-0905-preview", KindKimi, "moonshot-v1-8k", "https://kimi.example/v1/chat/completions", true},
		{"gemini-2.5-pro", KindGoogle, "gemini-2.5-pro", "https://generativelanguage.googleapis.com/v1beta/openai/chat/completions", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			d, ok := reg.Resolve(tt.model)
			if !ok {
				t.Fatalf("expected %s to resolve", tt.model)
			}
			if d.Provider != tt.provider {
				t.Errorf("provider = %s, want %s", d.Provider, tt.provider)
			}
			if d.UpstreamModel != tt.upstreamModel {
				t.Errorf("upstream model = %s, want %s", d.UpstreamModel, tt.upstreamModel)
			}
			if d.ChatURL() != tt.chatURL {
				t.Errorf("chat url = %s, want %s", d.ChatURL(), tt.chatURL)
			}
			if d.Transport.KeepAlive != tt.keepAlive {
				t.Errorf("keep-alive = %v, want %v", d.Transport.KeepAlive, tt.keepAlive)
			}
		})
	}
}

func TestRegistry_SupportedModelsIsACopy(t *testing.T) {
	reg, err := Build(config.ProvidersConfig{Zhipu: config.ProviderConfig{APIKey: "zk"}})
	if err != nil {
		t.Fatal(err)
	}
	models := reg.SupportedModels()
	models[0] = "mutated"
	if _, ok := reg.Resolve("glm-4.5"); !ok {
		t.Fatal("registry changed through returned slice")
	}
	if reg.SupportedModels()[0] != "glm-4.5" {
		t.Fatal("registry order changed through returned slice")
	}
}

func TestDescriptor_LogValueRedactsKey(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("resolved", "descriptor", Descriptor{ModelID: "glm-4.5", APIKey: "secret-key"})
	if strings.Contains(buf.String(), "secret-key") {
		t.Errorf("api key leaked into log output: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "glm-4.5") {
		t.Errorf("expected model id in log output: %s", buf.String())
	}
}

func TestRegistry_LookupUnknownModel(t *testing.T) {
	reg, err := Build(config.ProvidersConfig{
		Zhipu:  config.ProviderConfig{APIKey: "zk"},
		Google: config.ProviderConfig{APIKey: "gk"},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = reg.Lookup("unknown-model")
	if !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("expected ErrUnknownModel, got %v", err)
	}
	want := "unsupported model: unknown-model. supported models: glm-4.5, gemini-2.5-pro"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}

	d, err := reg.Lookup("gemini-2.5-pro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Provider != KindGoogle {
		t.Errorf("expected google, got %s", d.Provider)
	}
}

func TestRegistry_LookupAgreesWithResolve(t *testing.T) {
	reg, err := Build(config.ProvidersConfig{
		Zhipu: config.ProviderConfig{APIKey: "zk"},
		Kimi:  config.ProviderConfig{APIKey: "kk"},
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"glm-4.5", "kimi-k2-0905-preview", "gemini-2.5-pro", ""} {
		want, ok := reg.Resolve(id)
		got, err := reg.Lookup(id)
		if ok != (err == nil) {
			t.Errorf("%q: Resolve ok=%v but Lookup err=%v", id, ok, err)
		}
		if got != want {
			t.Errorf("%q: Lookup = %+v, Resolve = %+v", id, got, want)
		}
	}
}
