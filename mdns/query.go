package mdns

import "github.com/miekg/dns"

// buildReply consults catalog for every question in query and returns the
// answer message to send, whether it must go back unicast (any question
// had the unicast-response bit set), and whether there's anything to send
// at all. A NoError resolution with zero answers is dropped per spec §4.4.
func buildReply(catalog *Catalog, query *dns.Msg) (reply *dns.Msg, unicast bool, ok bool) {
	reply = new(dns.Msg)
	reply.Response = true
	reply.Authoritative = true
	reply.Id = 0

	for _, q := range query.Question {
		if q.Qclass&ClassUnicastResponseBit != 0 {
			unicast = true
		}

		qclass := q.Qclass &^ ClassUnicastResponseBit
		if qclass != dns.ClassINET && qclass != dns.ClassANY {
			continue
		}

		reply.Answer = append(reply.Answer, catalog.Lookup(q.Name, q.Qtype)...)
	}

	if len(reply.Answer) == 0 {
		return nil, false, false
	}
	return reply, unicast, true
}

// isQuery reports whether msg is a query we should answer, as opposed to
// a response we should fan out to active discovery listeners.
func isQuery(msg *dns.Msg) bool {
	return !msg.Response && msg.Opcode == dns.OpcodeQuery && len(msg.Question) > 0
}
