package okhttp

import (
	"github.com/loulikong/okhttp/internal/dialer"
	"github.com/loulikong/okhttp/internal/policy"
)

// Dialers handle pretty much everything related to the actual connection,
// including setting a proxy for each request, setting resolvers, certificate
// pinning, the cleartext policy and the connection pool behind it all.
type Dialer = dialer.Dialer
type CoreDialer = dialer.CoreDialer

type ProxyConfig = dialer.ProxyConfig
type ResolveConfig = dialer.ResolveConfig
type TLSConfig = dialer.TLSConfig

type TLSMode = dialer.TLSMode

const (
	ModeModern = dialer.ModeModern
	ModeLegacy = dialer.ModeLegacy
)

// CleartextPolicy decides whether plain http requests are allowed to reach
// the network. The zero value permits them, matching legacy platforms.
type CleartextPolicy = policy.Cleartext

const (
	CleartextPermitted = policy.CleartextPermitted
	CleartextBlocked   = policy.CleartextBlocked
)
