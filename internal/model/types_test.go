package model

import (
	"reflect"
	"testing"
)

func TestSkillsAtOrAbove(t *testing.T) {
	cases := []struct {
		required string
		want     []string
	}{
		{SkillMaster, []string{SkillMaster}},
		{SkillJourneyman, []string{SkillJourneyman, SkillMaster}},
		{SkillApprentice, []string{SkillApprentice, SkillJourneyman, SkillMaster}},
		{"", []string{SkillApprentice, SkillJourneyman, SkillMaster}},
		{"wizard", []string{SkillApprentice, SkillJourneyman, SkillMaster}},
	}
	for _, tc := range cases {
		if got := SkillsAtOrAbove(tc.required); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("SkillsAtOrAbove(%q) = %v, want %v", tc.required, got, tc.want)
		}
	}
}

func TestSkillRankOrdering(t *testing.T) {
	if !(SkillRank(SkillApprentice) < SkillRank(SkillJourneyman) &&
		SkillRank(SkillJourneyman) < SkillRank(SkillMaster)) {
		t.Fatal("skill ranks out of order")
	}
	if SkillRank("unknown") != 0 {
		t.Fatalf("unknown rank = %d", SkillRank("unknown"))
	}
}
