package signing

import (
	"crypto/rsa"
	"math/big"
)

// trustedModulus is the Warped Pinball firmware signing key modulus.
// The exponent is the common value 65537.
const trustedModulus = "25850530073502007505073398889935110756716032251132404339199218781380059422255360862345198138544675141546256513054332184373517438166092251410172963421556299077069195099284810366900994760048877561951388981897823462231871242380041390062269561386306787290618184745309059687916294069920586099425145107624115989895718851520436900326103985313232359151478484869518361685407610217568258949817227423076176730822354946128428713951948845035016003414197978601744938802692314180897355778380777214605494482082206918793349659727959426652897923672356221305760483911989683767700269466619761018439625757662776289786038860327614755771099"

// trustedKey is the process-wide verification key. Never mutated.
var trustedKey = mustParseKey(trustedModulus)

func mustParseKey(modulus string) *rsa.PublicKey {
	n, ok := new(big.Int).SetString(modulus, 10)
	if !ok {
		panic("signing: invalid embedded key modulus")
	}
	return &rsa.PublicKey{N: n, E: 65537}
}

// TrustedKey returns the embedded vendor public key.
// Callers must treat the returned key as read-only.
func TrustedKey() *rsa.PublicKey {
	return trustedKey
}
