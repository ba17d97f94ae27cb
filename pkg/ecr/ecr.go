// Package ecr maps regions to the EKS distribution ECR registries that host
// the pause container image.
//
// https://docs.aws.amazon.com/eks/latest/userguide/add-ons-images.html
package ecr

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// defaultAccountID hosts the EKS images in all commercial regions without a
// dedicated registry account.
const defaultAccountID = "602401143452"

// pauseImageTag pins the pause container version baked into the AMI.
const pauseImageTag = "3.8"

var regionAccountIDs = map[string]string{
	"af-south-1":     "877085696533",
	"ap-east-1":      "800184023465",
	"ap-south-2":     "900889452093",
	"ap-southeast-3": "296578399912",
	"ap-southeast-4": "491585149902",
	"cn-north-1":     "918309763551",
	"cn-northwest-1": "961992271922",
	"eu-central-2":   "900612956339",
	"eu-south-1":     "590381155156",
	"eu-south-2":     "455263428931",
	"il-central-1":   "066635153087",
	"me-central-1":   "759879836304",
	"me-south-1":     "558608220178",
	"us-gov-east-1":  "151742754352",
	"us-gov-west-1":  "013241004608",
	"us-iso-east-1":  "725322719131",
	"us-iso-west-1":  "608367168043",
	"us-isob-east-1": "187977181151",
}

// GetECRURI returns the registry hostname for the given region.
// FIPS endpoints only exist in US regions; a FIPS request elsewhere is
// logged and the non-US FIPS hostname is still produced, matching the
// upstream AMI behavior.
func GetECRURI(log *logrus.Logger, region string, enableFIPS bool) string {
	acctID, ok := regionAccountIDs[region]
	if !ok {
		acctID = defaultAccountID
	}

	domain := "amazonaws.com"
	if region == "cn-north-1" || region == "cn-northwest-1" {
		domain = "amazonaws.com.cn"
	}

	service := "ecr"
	if enableFIPS {
		if !strings.HasPrefix(region, "us-") {
			log.Error("FIPS endpoints are only supported in US regions")
		}
		service = "ecr-fips"
	}

	return fmt.Sprintf("%s.dkr.%s.%s.%s", acctID, service, region, domain)
}

// GetPauseImage returns the pause container image reference for the region.
func GetPauseImage(log *logrus.Logger, region string, enableFIPS bool) string {
	return fmt.Sprintf("%s/eks/pause:%s", GetECRURI(log, region, enableFIPS), pauseImageTag)
}
