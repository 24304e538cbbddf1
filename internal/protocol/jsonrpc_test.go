package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/aeon-gateway/internal/domain"
)

func TestParseRequestEnvelope(t *testing.T) {
	req, perr := ParseRequest([]byte(`{"jsonrpc":"2.0","method":"a2g/intent","id":1,"params":{"tool":"read_file"}}`))
	require.Nil(t, perr)
	assert.Equal(t, MethodIntent, req.Method)
	assert.Equal(t, json.RawMessage("1"), req.ID)
}

func TestParseRequestErrors(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		code int
	}{
		{"malformed json", `{"jsonrpc":`, CodeParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"a2g/intent"}`, CodeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0"}`, CodeInvalidRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, perr := ParseRequest([]byte(tc.raw))
			require.NotNil(t, perr)
			assert.Equal(t, tc.code, perr.Code)
		})
	}
}

func TestResponseEchoesID(t *testing.T) {
	id := json.RawMessage(`"req-7"`)
	ok := OK(id, map[string]string{"status": "acknowledged"})
	assert.Equal(t, id, ok.ID)
	assert.Equal(t, Version, ok.JSONRPC)

	fail := Fail(id, NewError(CodePolicyViolation, "policy violation: %s", "network.block"))
	assert.Equal(t, id, fail.ID)
	require.NotNil(t, fail.Error)
	assert.Equal(t, CodePolicyViolation, fail.Error.Code)
	assert.Equal(t, "policy violation: network.block", fail.Error.Message)
}

func TestIntentParamsValidate(t *testing.T) {
	p := &IntentParams{AgentDID: "did:aeon:a:1.0:ff", Tool: "read_file"}
	assert.Nil(t, p.Validate())

	assert.Equal(t, CodeInvalidParams, (&IntentParams{Tool: "read_file"}).Validate().Code)
	assert.Equal(t, CodeInvalidParams, (&IntentParams{AgentDID: "did:aeon:a:1.0:ff"}).Validate().Code)
}

func TestReportParamsValidate(t *testing.T) {
	p := &ReportParams{AgentDID: "did:aeon:a:1.0:ff", IntentID: "it-1", Status: domain.ExecSuccess}
	assert.Nil(t, p.Validate())

	p.Status = "WEIRD"
	perr := p.Validate()
	require.NotNil(t, perr)
	assert.Equal(t, CodeInvalidParams, perr.Code)

	assert.NotNil(t, (&ReportParams{IntentID: "it-1", Status: domain.ExecSuccess}).Validate())
}

func TestRegisterParamsValidate(t *testing.T) {
	p := &RegisterParams{AgentDID: "did:aeon:a:1.0:ff", PublicKey: "ff", CapabilitiesRequested: []string{"read_file"}}
	assert.Nil(t, p.Validate())

	p.CapabilitiesRequested = nil
	assert.Equal(t, CodeInvalidParams, p.Validate().Code)
}

func TestNewVerdictResultNeverNilThreats(t *testing.T) {
	v := &domain.Verdict{
		IntentID: "it-1",
		Outcome:  domain.OutcomeApproved,
		Risk:     domain.RiskAssessment{Level: domain.RiskLow},
		Manifest: &domain.CapabilityManifest{MaxMemoryMB: 128, FilesystemScope: []string{"/workspace/**"}},
	}
	res := NewVerdictResult(v)
	require.NotNil(t, res.Risk.Threats)
	assert.Empty(t, res.Risk.Threats)
	require.NotNil(t, res.Manifest)
	assert.Equal(t, 128, res.Manifest.MaxMemoryMB)

	// DENIED без манифеста
	res = NewVerdictResult(&domain.Verdict{Outcome: domain.OutcomeDenied, Risk: domain.RiskAssessment{Threats: []string{"reverse_shell"}}})
	assert.Nil(t, res.Manifest)
	assert.Equal(t, []string{"reverse_shell"}, res.Risk.Threats)
}
