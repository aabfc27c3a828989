package destination

import (
	"testing"

	"github.com/searchlight-alerting/searchlight/internal/models"
	"github.com/searchlight-alerting/searchlight/internal/settings"
)

func TestRegionFromARN(t *testing.T) {
	tests := []struct {
		arn     string
		region  string
		wantErr bool
	}{
		{"arn:aws:sns:us-east-1:123456789012:alerts", "us-east-1", false},
		{"arn:aws:sns:eu-west-2:123456789012:alerts-topic", "eu-west-2", false},
		{"arn:aws:sns::123456789012:alerts", "", true},
		{"arn:aws:sqs:us-east-1:123456789012:queue", "", true},
		{"not-an-arn", "", true},
		{"", "", true},
	}

	for _, tc := range tests {
		region, err := regionFromARN(tc.arn)
		if tc.wantErr {
			if err == nil {
				t.Errorf("regionFromARN(%q): expected an error", tc.arn)
			}
			continue
		}
		if err != nil {
			t.Errorf("regionFromARN(%q): %v", tc.arn, err)
			continue
		}
		if region != tc.region {
			t.Errorf("regionFromARN(%q) = %q, want %q", tc.arn, region, tc.region)
		}
	}
}

func TestClientCacheKeyStaticCredentials(t *testing.T) {
	dest := models.Destination{RoleARN: "arn:aws:iam::1:role/publisher"}
	aws := settings.AWSSettings{SNSEnabled: true, AccessKey: "AKIA1", SecretKey: "s1"}

	key := clientCacheKey(dest, aws)
	if key == "role:"+dest.RoleARN {
		t.Fatal("static mode must not key by role ARN")
	}

	// Same credentials resolve to the same key regardless of destination.
	other := models.Destination{RoleARN: "arn:aws:iam::2:role/other"}
	if clientCacheKey(other, aws) != key {
		t.Error("same static credentials must share one cached client")
	}

	// Rotated credentials get a fresh key.
	rotated := settings.AWSSettings{SNSEnabled: true, AccessKey: "AKIA2", SecretKey: "s2"}
	if clientCacheKey(dest, rotated) == key {
		t.Error("rotated credentials must not reuse the old client")
	}
}

func TestClientCacheKeyRoleMode(t *testing.T) {
	dest := models.Destination{RoleARN: "arn:aws:iam::1:role/publisher"}

	key := clientCacheKey(dest, settings.AWSSettings{})
	if key != "role:"+dest.RoleARN {
		t.Errorf("key = %q", key)
	}

	// SNS static mode disabled keys by role even when credentials are set.
	aws := settings.AWSSettings{SNSEnabled: false, AccessKey: "AKIA1", SecretKey: "s1"}
	if clientCacheKey(dest, aws) != key {
		t.Error("disabled static mode must fall back to the role key")
	}
}

func TestInvalidateDropsCachedClients(t *testing.T) {
	pool := newSNSClientPool()
	pool.clients["role:x"] = nil

	pool.Invalidate()
	if len(pool.clients) != 0 {
		t.Errorf("clients = %d, want 0", len(pool.clients))
	}
}
