package ecr

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestGetECRURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		region     string
		enableFIPS bool
		want       string
	}{
		{
			name:   "default commercial region",
			region: "us-east-1",
			want:   "602401143452.dkr.ecr.us-east-1.amazonaws.com",
		},
		{
			name:   "dedicated registry account",
			region: "ap-east-1",
			want:   "800184023465.dkr.ecr.ap-east-1.amazonaws.com",
		},
		{
			name:   "china partition",
			region: "cn-north-1",
			want:   "918309763551.dkr.ecr.cn-north-1.amazonaws.com.cn",
		},
		{
			name:   "govcloud",
			region: "us-gov-west-1",
			want:   "013241004608.dkr.ecr.us-gov-west-1.amazonaws.com",
		},
		{
			name:       "fips",
			region:     "us-east-1",
			enableFIPS: true,
			want:       "602401143452.dkr.ecr-fips.us-east-1.amazonaws.com",
		},
		{
			name:       "fips outside US still produces hostname",
			region:     "eu-west-1",
			enableFIPS: true,
			want:       "602401143452.dkr.ecr-fips.eu-west-1.amazonaws.com",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := GetECRURI(discardLogger(), tc.region, tc.enableFIPS)
			if got != tc.want {
				t.Fatalf("GetECRURI(%q, %v) = %q, want %q", tc.region, tc.enableFIPS, got, tc.want)
			}
		})
	}
}

func TestGetPauseImage(t *testing.T) {
	t.Parallel()

	got := GetPauseImage(discardLogger(), "us-west-2", false)
	want := "602401143452.dkr.ecr.us-west-2.amazonaws.com/eks/pause:3.8"
	if got != want {
		t.Fatalf("GetPauseImage() = %q, want %q", got, want)
	}
}
