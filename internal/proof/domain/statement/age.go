package statement

import (
	"time"

	"attest/internal/proof/domain/attribute"
	"attest/internal/proof/models"
)

// Identity providers attest the date of birth as YYYYMMDD, so age bounds are
// ranges on dob relative to a reference date.
const dobLayout = "20060102"

// Bounds used when one side of an age range is open.
const (
	minDate = "18000101"
	maxDate = "99990101"
)

// dobOnBirthday returns the latest date of birth of someone who is at least
// age years old on day.
func dobOnBirthday(day time.Time, age int) time.Time {
	y, m, d := day.Date()
	return time.Date(y-age, m, d, 0, 0, 0, 0, time.UTC)
}

func date(t time.Time) attribute.Value {
	return attribute.String(t.Format(dobLayout))
}

// AgeAtLeast is satisfied by identities that are at least age years old on now.
func AgeAtLeast(age int, now time.Time) models.AttributeInRange {
	return models.AttributeInRange{
		AttributeTag: models.TagDateOfBirth,
		Lower:        attribute.String(minDate),
		Upper:        date(dobOnBirthday(now, age).AddDate(0, 0, 1)),
	}
}

// AgeBelow is satisfied by identities that are younger than age years on now.
func AgeBelow(age int, now time.Time) models.AttributeInRange {
	return models.AttributeInRange{
		AttributeTag: models.TagDateOfBirth,
		Lower:        date(dobOnBirthday(now, age).AddDate(0, 0, 1)),
		Upper:        attribute.String(maxDate),
	}
}

// AgeBetween is satisfied by identities whose age on now lies in [minAge, maxAge].
func AgeBetween(minAge, maxAge int, now time.Time) models.AttributeInRange {
	return models.AttributeInRange{
		AttributeTag: models.TagDateOfBirth,
		Lower:        date(dobOnBirthday(now, maxAge+1).AddDate(0, 0, 1)),
		Upper:        date(dobOnBirthday(now, minAge).AddDate(0, 0, 1)),
	}
}
