package dnstraverse

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// Outcome is the tagged variant a DecodedResponse is classified into.
type Outcome string

const (
	OutcomeAnswer       Outcome = "ANSWER"
	OutcomeNodata       Outcome = "NODATA"
	OutcomeNXDomain     Outcome = "NXDOMAIN"
	OutcomeReferral     Outcome = "REFERRAL"
	OutcomeReferralLame Outcome = "REFERRAL_LAME"
	OutcomeCNAMELoop    Outcome = "CNAME_LOOP"
	OutcomeTimeout      Outcome = "TIMEOUT"
	OutcomeFormErr      Outcome = "FORMERR"
	OutcomeServfail     Outcome = "SERVFAIL"
	OutcomeOtherError   Outcome = "OTHER_ERROR"

	// OutcomeFailed is synthetic: it never comes out of decode, only out
	// of a Referral whose depth/loop guard tripped, or whose server name
	// could not be resolved, before any query was sent (spec.md section 4.4).
	OutcomeFailed Outcome = "FAILED"
)

// DecodedResponse is the classification of a single send/receive attempt
// against one server IP for one query.
type DecodedResponse struct {
	ServerIP  netip.Addr
	Query     Query
	Bailiwick Bailiwick
	Outcome   Outcome
	Message   *dns.Msg
	Warnings  []string
	RTT       time.Duration

	// FinalName is the name reached after CNAME chasing, set only when
	// Outcome == OutcomeAnswer and it differs from Query.Name.
	FinalName string
	// LameNames holds the target names of the NS records whose owner name
	// is out of bailiwick, set when Outcome == OutcomeReferralLame.
	LameNames []string
}

// decode performs one send/receive attempt against server for query within
// bailiwick, applying the classification rules of spec.md section 4.2 in
// order.
func (t *Traverser) decode(ctx context.Context, server netip.Addr, q Query, bw Bailiwick) *DecodedResponse {
	dr := &DecodedResponse{ServerIP: server, Query: q, Bailiwick: bw}

	m := new(dns.Msg)
	m.SetQuestion(q.Name, q.Type)
	m.Question[0].Qclass = q.Class
	m.RecursionDesired = false
	t.setEDNS(m)

	start := time.Now()
	resp, err := t.exchange(ctx, m, server)
	dr.RTT = time.Since(start)

	if err != nil {
		dr.Message = resp
		dr.Outcome, dr.Warnings = classifyTransportError(err)
		return dr
	}
	if resp == nil {
		dr.Outcome = OutcomeTimeout
		dr.Warnings = append(dr.Warnings, "no response")
		return dr
	}
	dr.Message = resp
	dr.Warnings = append(dr.Warnings, messageWarnings(resp)...)

	switch resp.Rcode {
	case dns.RcodeServerFailure:
		dr.Outcome = OutcomeServfail
		return dr
	case dns.RcodeNameError:
		dr.Outcome = OutcomeNXDomain
		return dr
	}

	if err := validate(resp, q); err != nil {
		dr.Outcome = OutcomeOtherError
		dr.Warnings = append(dr.Warnings, err.Error())
		return dr
	}

	final, loop := followCNAMEs(resp, q.Name, q.Type, bw)
	if loop {
		dr.Outcome = OutcomeCNAMELoop
		return dr
	}
	chased := !strings.EqualFold(final, q.Name)
	if chased || len(answers(resp, Query{Name: final, Type: q.Type, Class: q.Class})) > 0 {
		dr.Outcome = OutcomeAnswer
		if chased {
			dr.FinalName = final
		}
		return dr
	}

	ns, _, _ := authorityPartition(resp)
	if len(ns) > 0 {
		inBW, lame := partitionNS(ns, bw)
		switch {
		case len(inBW) > 0 && len(lame) == 0:
			dr.Outcome = OutcomeReferral
			return dr
		case len(inBW) > 0 && len(lame) > 0:
			dr.Outcome = OutcomeReferralLame
			dr.LameNames = lame
			return dr
		default:
			// every NS in the authority section is out of bailiwick.
			dr.Outcome = OutcomeOtherError
			return dr
		}
	}

	if isNodata(resp) {
		dr.Outcome = OutcomeNodata
		return dr
	}
	dr.Outcome = OutcomeOtherError
	return dr
}

// partitionNS splits NS target names by whether the owner name of their NS
// record is in bailiwick.
func partitionNS(ns []dns.RR, bw Bailiwick) (inBailiwick, lame []string) {
	for _, rr := range ns {
		nsrr, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		target := canonicalName(nsrr.Ns)
		if bw.Contains(nsrr.Hdr.Name) {
			inBailiwick = append(inBailiwick, target)
		} else {
			lame = append(lame, target)
		}
	}
	return
}

// messageWarnings surfaces non-fatal message-level anomalies: a truncation
// bit and recursion-available flag are noted but never change the outcome.
func messageWarnings(msg *dns.Msg) []string {
	var warnings []string
	if msg.Truncated {
		warnings = append(warnings, "truncated response")
	}
	if msg.RecursionAvailable {
		warnings = append(warnings, "unexpected recursion-available bit")
	}
	return warnings
}

func classifyTransportError(err error) (Outcome, []string) {
	warning := "transport error: " + err.Error() + " (" + extendedErrorCodeName(ExtendedErrorCodeFromError(err)) + ")"
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout, []string{warning}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout, []string{warning}
	}
	if strings.Contains(err.Error(), "overflow") || strings.Contains(err.Error(), "malformed") {
		return OutcomeFormErr, []string{warning}
	}
	return OutcomeOtherError, []string{warning}
}
