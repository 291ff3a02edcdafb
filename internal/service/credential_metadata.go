package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ethed-api/internal/domain"
)

var ErrInvalidAchievement = errors.New("invalid achievement")

const (
	foundingName        = "EthEd Pioneer"
	foundingDescription = "Awarded to the founding learners of EthEd, the first cohort to claim an on-chain identity on the platform."
	platformURL         = "https://ethed.app"
)

// BuildMetadata arma la metadata ERC-721 de un logro. Es pura: las mismas
// entradas producen siempre el mismo documento.
func BuildMetadata(kind string, params domain.AchievementParams, identityName string, issuedAt time.Time, imageBaseURL string) (domain.CredentialMetadata, error) {
	imageBaseURL = strings.TrimRight(imageBaseURL, "/")
	issued := issuedAt.UTC().Format("2006-01-02")

	var meta domain.CredentialMetadata
	switch {
	case kind == domain.AchievementFounding:
		meta = domain.CredentialMetadata{
			Name:        foundingName,
			Description: foundingDescription,
			Image:       imageBaseURL + "/pioneer.png",
			ExternalURL: platformURL,
			Attributes: []domain.MetadataAttribute{
				{TraitType: "Achievement Type", Value: "Founding Member"},
				{TraitType: "Completion Date", Value: issued},
			},
		}
	case strings.HasPrefix(kind, domain.AchievementCoursePrefix):
		courseID := strings.TrimPrefix(kind, domain.AchievementCoursePrefix)
		if courseID == "" {
			return domain.CredentialMetadata{}, fmt.Errorf("%w: empty course id", ErrInvalidAchievement)
		}
		title := strings.TrimSpace(params.CourseTitle)
		if title == "" {
			title = courseID
		}
		completed := issued
		if !params.CompletedAt.IsZero() {
			completed = params.CompletedAt.UTC().Format("2006-01-02")
		}
		meta = domain.CredentialMetadata{
			Name:        title + " Certificate",
			Description: fmt.Sprintf("Certifies completion of the EthEd course %q.", title),
			Image:       imageBaseURL + "/course.png",
			ExternalURL: platformURL + "/courses/" + courseID,
			Attributes: []domain.MetadataAttribute{
				{TraitType: "Achievement Type", Value: "Course Completion"},
				{TraitType: "Course", Value: title},
				{TraitType: "Completion Date", Value: completed},
			},
		}
	default:
		return domain.CredentialMetadata{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidAchievement, kind)
	}

	if identityName != "" {
		meta.Attributes = append(meta.Attributes, domain.MetadataAttribute{TraitType: "Identity", Value: identityName})
	}
	return meta, nil
}
