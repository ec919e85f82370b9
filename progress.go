package dnstraverse

// Stage names passed to ProgressFunc. Main stages fire once per Referral
// as it moves through expand; resolve stages fire around the side
// traversal expand launches to find a bare NS target's own address.
const (
	StageStart          = "start"
	StageNewReferralSet = "new_referral_set"
	StageAnswer         = "answer"
	StageAnswerFast     = "answer_fast"
)
