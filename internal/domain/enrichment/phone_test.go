package enrichment_test

import (
	"testing"

	enrichment "github.com/immodesk/leadengine/internal/domain/enrichment"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNormalizePhone(t *testing.T) {
	Convey("Given phone numbers in assorted local formats", t, func() {
		cases := map[string]string{
			"0049 170 1234567": "+49 170 1234567",
			"0170/1234567":     "+49 170 1234567",
			"+49 170 1234567":  "+49 170 1234567",
			"0043 664 1234567": "+43 6641234567",
			"0041 79 1234567":  "+41 791234567",
			"":                 "",
		}

		Convey("Then each normalizes to its canonical form", func() {
			for input, want := range cases {
				So(enrichment.NormalizePhone(input), ShouldEqual, want)
			}
		})

		Convey("And normalization is idempotent", func() {
			for input := range cases {
				once := enrichment.NormalizePhone(input)
				So(enrichment.NormalizePhone(once), ShouldEqual, once)
			}
		})
	})
}
