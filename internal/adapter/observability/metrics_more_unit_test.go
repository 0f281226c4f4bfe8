package observability

import "testing"

func TestSetAppEnv_SetsDevEnvironment(t *testing.T) {
	appEnv = ""
	SetAppEnv("DEV")
	if !isDevEnv() {
		t.Fatalf("expected dev environment after SetAppEnv(\"DEV\")")
	}
}

func TestRecordTaskFailureByCode_DefaultsUnknownAndCustom(_ *testing.T) {
	RecordTaskFailureByCode("feedback:generate", "")
	RecordTaskFailureByCode("feedback:generate", "AI_SERVICE_TRANSIENT")
}
