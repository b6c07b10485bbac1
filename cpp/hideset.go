package cpp

// The hideset of a token is the set of identifiers whose expansion resulted in the token.
//
// Hidesets prevent infinite macro expansion.
// It is implemented as an immutable singly linked list for code clarity.
// Sets share their tails, adding to a set never changes the original,
// so a token copy can never see another token's hideset change.
// Performance should be ok for most real world code (hidesets are small in practice).

type hideset struct {
	r   *hideset
	val string
}

var emptyHS *hideset = nil

func (hs *hideset) rest() *hideset {
	if hs == emptyHS {
		return emptyHS
	}
	return hs.r
}

func (hs *hideset) len() int {
	n := 0
	for ; hs != emptyHS; hs = hs.r {
		n++
	}
	return n
}

func (hs *hideset) contains(s string) bool {
	for ; hs != emptyHS; hs = hs.r {
		if hs.val == s {
			return true
		}
	}
	return false
}

func (hs *hideset) add(s string) *hideset {
	if hs.contains(s) {
		return hs
	}
	return &hideset{
		r:   hs,
		val: s,
	}
}

// union returns every name in hs or b.
func (hs *hideset) union(b *hideset) *hideset {
	if hs == emptyHS {
		return b
	}
	for hs != emptyHS {
		b = b.add(hs.val)
		hs = hs.rest()
	}
	return b
}

// intersection returns the names present in both hs and b.
func (hs *hideset) intersection(b *hideset) *hideset {
	ret := emptyHS
	for hs != emptyHS {
		if b.contains(hs.val) {
			ret = ret.add(hs.val)
		}
		hs = hs.rest()
	}
	return ret
}

func (hs *hideset) names() []string {
	var ret []string
	for ; hs != emptyHS; hs = hs.r {
		ret = append(ret, hs.val)
	}
	return ret
}
