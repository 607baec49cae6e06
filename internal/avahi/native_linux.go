//go:build linux && cgo

package avahi

/*
#cgo LDFLAGS: -lavahi-client -lavahi-common -lpthread

#define _GNU_SOURCE
#include <poll.h>
#include <pthread.h>
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <avahi-client/client.h>
#include <avahi-client/lookup.h>
#include <avahi-common/address.h>
#include <avahi-common/error.h>
#include <avahi-common/simple-watch.h>

extern void landiscoveryClientCallback(AvahiClient *, AvahiClientState, void *);
extern void landiscoveryBrowseCallback(AvahiServiceBrowser *, AvahiIfIndex, AvahiProtocol,
	AvahiBrowserEvent, char *, char *, char *, AvahiLookupResultFlags, void *);
extern void landiscoveryResolveCallback(AvahiServiceResolver *, AvahiIfIndex, AvahiProtocol,
	AvahiResolverEvent, char *, char *, char *, char *, AvahiAddress *, uint16_t,
	AvahiStringList *, AvahiLookupResultFlags, void *);

// A simple poll whose state is guarded by a recursive mutex. The loop
// thread holds the mutex except while it sleeps in poll(2), the same
// scheme as avahi's threaded poll, so other threads can take the lock
// to call into the client library.
typedef struct {
	AvahiSimplePoll *poll;
	pthread_mutex_t mutex;
} lan_poll;

static int lan_poll_func(struct pollfd *ufds, unsigned int nfds, int timeout, void *userdata) {
	lan_poll *lp = userdata;
	int r;

	pthread_mutex_unlock(&lp->mutex);
	r = poll(ufds, nfds, timeout);
	pthread_mutex_lock(&lp->mutex);
	return r;
}

static lan_poll *lan_poll_new(void) {
	pthread_mutexattr_t attr;
	lan_poll *lp = calloc(1, sizeof(*lp));

	if (!lp)
		return NULL;
	if (!(lp->poll = avahi_simple_poll_new())) {
		free(lp);
		return NULL;
	}
	pthread_mutexattr_init(&attr);
	pthread_mutexattr_settype(&attr, PTHREAD_MUTEX_RECURSIVE);
	pthread_mutex_init(&lp->mutex, &attr);
	pthread_mutexattr_destroy(&attr);
	avahi_simple_poll_set_func(lp->poll, lan_poll_func, lp);
	return lp;
}

static int lan_poll_loop(lan_poll *lp) {
	int r;

	pthread_mutex_lock(&lp->mutex);
	r = avahi_simple_poll_loop(lp->poll);
	pthread_mutex_unlock(&lp->mutex);
	return r;
}

static void lan_poll_lock(lan_poll *lp) {
	pthread_mutex_lock(&lp->mutex);
}

static void lan_poll_unlock(lan_poll *lp) {
	avahi_simple_poll_wakeup(lp->poll);
	pthread_mutex_unlock(&lp->mutex);
}

static void lan_poll_free(lan_poll *lp) {
	avahi_simple_poll_free(lp->poll);
	pthread_mutex_destroy(&lp->mutex);
	free(lp);
}

static AvahiClient *lan_client_new(const AvahiPoll *p, AvahiClientFlags flags, uintptr_t h, int *error) {
	return avahi_client_new(p, flags, landiscoveryClientCallback, (void *)h, error);
}

static void lan_browse_cb(AvahiServiceBrowser *b, AvahiIfIndex iface, AvahiProtocol proto,
	AvahiBrowserEvent event, const char *name, const char *type, const char *domain,
	AvahiLookupResultFlags flags, void *userdata) {
	landiscoveryBrowseCallback(b, iface, proto, event, (char *)name, (char *)type,
		(char *)domain, flags, userdata);
}

static AvahiServiceBrowser *lan_browser_new(AvahiClient *c, AvahiIfIndex iface, AvahiProtocol proto,
	const char *type, const char *domain, AvahiLookupFlags flags, uintptr_t h) {
	return avahi_service_browser_new(c, iface, proto, type, domain, flags, lan_browse_cb, (void *)h);
}

static void lan_resolve_cb(AvahiServiceResolver *r, AvahiIfIndex iface, AvahiProtocol proto,
	AvahiResolverEvent event, const char *name, const char *type, const char *domain,
	const char *host_name, const AvahiAddress *a, uint16_t port, AvahiStringList *txt,
	AvahiLookupResultFlags flags, void *userdata) {
	landiscoveryResolveCallback(r, iface, proto, event, (char *)name, (char *)type,
		(char *)domain, (char *)host_name, (AvahiAddress *)a, port, txt, flags, userdata);
}

static AvahiServiceResolver *lan_resolver_new(AvahiClient *c, AvahiIfIndex iface, AvahiProtocol proto,
	const char *name, const char *type, const char *domain, AvahiProtocol aproto,
	AvahiLookupFlags flags, uintptr_t h) {
	return avahi_service_resolver_new(c, iface, proto, name, type, domain, aproto, flags,
		lan_resolve_cb, (void *)h);
}

static void lan_address_snprint(char *buf, size_t n, AvahiProtocol proto, const uint8_t *data) {
	AvahiAddress a;

	memset(&a, 0, sizeof(a));
	a.proto = proto;
	memcpy(a.data.data, data, proto == AVAHI_PROTO_INET6 ? 16 : 4);
	avahi_address_snprint(buf, n, &a);
}

static void lan_address_copy(const AvahiAddress *a, AvahiProtocol *proto, uint8_t *out) {
	*proto = a->proto;
	memcpy(out, a->data.data, a->proto == AVAHI_PROTO_INET6 ? 16 : 4);
}
*/
import "C"

import (
	"runtime"
	"runtime/cgo"
	"unsafe"
)

// The Go constants must keep the values of the C headers.
func _() {
	var x [1]struct{}
	_ = x[AddressStrMax-C.AVAHI_ADDRESS_STR_MAX]
	_ = x[int(IfUnspec)-C.AVAHI_IF_UNSPEC]
	_ = x[int(ProtoInet)-C.AVAHI_PROTO_INET]
	_ = x[int(ProtoInet6)-C.AVAHI_PROTO_INET6]
	_ = x[int(ProtoUnspec)-C.AVAHI_PROTO_UNSPEC]
	_ = x[int(ClientRegistering)-C.AVAHI_CLIENT_S_REGISTERING]
	_ = x[int(ClientRunning)-C.AVAHI_CLIENT_S_RUNNING]
	_ = x[int(ClientCollision)-C.AVAHI_CLIENT_S_COLLISION]
	_ = x[int(ClientFailure)-C.AVAHI_CLIENT_FAILURE]
	_ = x[int(ClientConnecting)-C.AVAHI_CLIENT_CONNECTING]
	_ = x[int(ClientIgnoreUserConfig)-C.AVAHI_CLIENT_IGNORE_USER_CONFIG]
	_ = x[int(ClientNoFail)-C.AVAHI_CLIENT_NO_FAIL]
	_ = x[int(BrowserNew)-C.AVAHI_BROWSER_NEW]
	_ = x[int(BrowserRemove)-C.AVAHI_BROWSER_REMOVE]
	_ = x[int(BrowserCacheExhausted)-C.AVAHI_BROWSER_CACHE_EXHAUSTED]
	_ = x[int(BrowserAllForNow)-C.AVAHI_BROWSER_ALL_FOR_NOW]
	_ = x[int(BrowserFailure)-C.AVAHI_BROWSER_FAILURE]
	_ = x[int(ResolverFound)-C.AVAHI_RESOLVER_FOUND]
	_ = x[int(ResolverFailure)-C.AVAHI_RESOLVER_FAILURE]
	_ = x[int(LookupUseWideArea)-C.AVAHI_LOOKUP_USE_WIDE_AREA]
	_ = x[int(LookupUseMulticast)-C.AVAHI_LOOKUP_USE_MULTICAST]
	_ = x[int(LookupNoTXT)-C.AVAHI_LOOKUP_NO_TXT]
	_ = x[int(LookupNoAddress)-C.AVAHI_LOOKUP_NO_ADDRESS]
	_ = x[int(LookupResultCached)-C.AVAHI_LOOKUP_RESULT_CACHED]
	_ = x[int(LookupResultStatic)-C.AVAHI_LOOKUP_RESULT_STATIC]
	_ = x[CodeNoDaemon-C.AVAHI_ERR_NO_DAEMON]
	_ = x[CodeCollision-C.AVAHI_ERR_COLLISION]
}

type native struct{}

// New returns the binding of the system's Avahi client library.
func New() Native { return native{} }

func (native) NewSimplePoll() (SimplePoll, error) {
	lp := C.lan_poll_new()
	if lp == nil {
		return nil, NewError("simple_poll_new", CodeNoMemory, "")
	}
	p := &simplePoll{lp: lp}
	p.api = &pollAPI{ptr: C.avahi_simple_poll_get(lp.poll), owner: p}
	return p, nil
}

func (native) NewClient(p Poll, flags ClientFlags, cb ClientCallback) (Client, error) {
	api, ok := p.(*pollAPI)
	if !ok || api.owner.lp == nil {
		return nil, NewError("client_new", CodeInvalidObject, "")
	}

	// The callback can fire inside avahi_client_new, so the Go side of
	// the client has to exist before the call.
	c := &client{
		cb:        cb,
		browsers:  make(map[*serviceBrowser]struct{}),
		resolvers: make(map[*serviceResolver]struct{}),
	}
	c.handle = cgo.NewHandle(c)

	var cerr C.int
	ptr := C.lan_client_new(api.ptr, C.AvahiClientFlags(flags), C.uintptr_t(c.handle), &cerr)
	if ptr == nil {
		c.handle.Delete()
		return nil, NewError("client_new", int(cerr), strerror(cerr))
	}
	c.ptr = ptr
	return c, nil
}

func (native) AddressSnprint(buf []byte, a *Address) {
	if len(buf) == 0 {
		return
	}
	if a == nil {
		buf[0] = 0
		return
	}
	C.lan_address_snprint((*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf)),
		C.AvahiProtocol(a.Proto), (*C.uint8_t)(unsafe.Pointer(&a.Data[0])))
}

func (native) Strerror(code int) string {
	return strerror(C.int(code))
}

func strerror(code C.int) string {
	return C.GoString(C.avahi_strerror(code))
}

type simplePoll struct {
	lp  *C.lan_poll
	api *pollAPI
}

type pollAPI struct {
	ptr   *C.AvahiPoll
	owner *simplePoll
}

func (a *pollAPI) Owner() SimplePoll { return a.owner }

func (p *simplePoll) Get() Poll { return p.api }

func (p *simplePoll) Loop() int {
	return int(C.lan_poll_loop(p.lp))
}

func (p *simplePoll) Quit() {
	C.avahi_simple_poll_quit(p.lp.poll)
}

func (p *simplePoll) Do(f func()) {
	// The mutex is a pthread mutex: lock and unlock on the same thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	C.lan_poll_lock(p.lp)
	defer C.lan_poll_unlock(p.lp)
	f()
}

func (p *simplePoll) Free() {
	if p.lp == nil {
		return
	}
	C.lan_poll_free(p.lp)
	p.lp = nil
}

type client struct {
	ptr    *C.AvahiClient
	cb     ClientCallback
	handle cgo.Handle

	browsers  map[*serviceBrowser]struct{}
	resolvers map[*serviceResolver]struct{}
}

func (c *client) lastError(op string) error {
	code := C.avahi_client_errno(c.ptr)
	return NewError(op, int(code), strerror(code))
}

func (c *client) NewServiceBrowser(iface IfIndex, proto Protocol, serviceType, domain string,
	flags LookupFlags, cb BrowseCallback) (ServiceBrowser, error) {
	if c.ptr == nil {
		return nil, ErrHandleFreed
	}

	ctype := C.CString(serviceType)
	defer C.free(unsafe.Pointer(ctype))
	var cdomain *C.char
	if domain != "" {
		cdomain = C.CString(domain)
		defer C.free(unsafe.Pointer(cdomain))
	}

	b := &serviceBrowser{client: c, cb: cb}
	b.handle = cgo.NewHandle(b)
	ptr := C.lan_browser_new(c.ptr, C.AvahiIfIndex(iface), C.AvahiProtocol(proto),
		ctype, cdomain, C.AvahiLookupFlags(flags), C.uintptr_t(b.handle))
	if ptr == nil {
		b.handle.Delete()
		return nil, c.lastError("service_browser_new")
	}
	if !c.trackBrowser(b) {
		// Freed by its own callback inside the constructor.
		return b, nil
	}
	b.ptr = ptr
	return b, nil
}

func (c *client) NewServiceResolver(iface IfIndex, proto Protocol, name, serviceType, domain string,
	aproto Protocol, flags LookupFlags, cb ResolveCallback) (ServiceResolver, error) {
	if c.ptr == nil {
		return nil, ErrHandleFreed
	}

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	ctype := C.CString(serviceType)
	defer C.free(unsafe.Pointer(ctype))
	var cdomain *C.char
	if domain != "" {
		cdomain = C.CString(domain)
		defer C.free(unsafe.Pointer(cdomain))
	}

	r := &serviceResolver{client: c, cb: cb}
	r.handle = cgo.NewHandle(r)
	ptr := C.lan_resolver_new(c.ptr, C.AvahiIfIndex(iface), C.AvahiProtocol(proto),
		cname, ctype, cdomain, C.AvahiProtocol(aproto), C.AvahiLookupFlags(flags), C.uintptr_t(r.handle))
	if ptr == nil {
		r.handle.Delete()
		return nil, c.lastError("service_resolver_new")
	}
	if !c.trackResolver(r) {
		// Freed by its own callback inside the constructor.
		return r, nil
	}
	r.ptr = ptr
	return r, nil
}

func (c *client) HostName() (string, error) {
	if c.ptr == nil {
		return "", ErrHandleFreed
	}
	name := C.avahi_client_get_host_name(c.ptr)
	if name == nil {
		return "", c.lastError("client_get_host_name")
	}
	return C.GoString(name), nil
}

func (c *client) SetHostName(name string) error {
	if c.ptr == nil {
		return ErrHandleFreed
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if r := C.avahi_client_set_host_name(c.ptr, cname); r < 0 {
		return NewError("client_set_host_name", int(r), strerror(r))
	}
	return nil
}

func (c *client) State() ClientState {
	if c.ptr == nil {
		return ClientFailure
	}
	return ClientState(C.avahi_client_get_state(c.ptr))
}

func (c *client) Errno() int {
	if c.ptr == nil {
		return CodeBadState
	}
	return int(C.avahi_client_errno(c.ptr))
}

func (c *client) Free() {
	if c.ptr == nil {
		return
	}
	// avahi_client_free releases the native browsers and resolvers too.
	for b := range c.browsers {
		b.release()
	}
	for r := range c.resolvers {
		r.release()
	}
	C.avahi_client_free(c.ptr)
	c.ptr = nil
	c.handle.Delete()
}

type serviceBrowser struct {
	ptr      *C.AvahiServiceBrowser
	client   *client
	cb       BrowseCallback
	handle   cgo.Handle
	released bool
}

func (b *serviceBrowser) Free() error {
	if b.ptr == nil {
		return ErrHandleFreed
	}
	r := C.avahi_service_browser_free(b.ptr)
	b.release()
	if r < 0 {
		return NewError("service_browser_free", int(r), strerror(r))
	}
	return nil
}

func (b *serviceBrowser) release() {
	if b.released {
		return
	}
	b.released = true
	b.ptr = nil
	b.handle.Delete()
	delete(b.client.browsers, b)
}

// trackBrowser records b as a child of c unless it was already released.
func (c *client) trackBrowser(b *serviceBrowser) bool {
	if b.released {
		return false
	}
	c.browsers[b] = struct{}{}
	return true
}

type serviceResolver struct {
	ptr      *C.AvahiServiceResolver
	client   *client
	cb       ResolveCallback
	handle   cgo.Handle
	released bool
}

func (r *serviceResolver) Free() error {
	if r.ptr == nil {
		return ErrHandleFreed
	}
	ret := C.avahi_service_resolver_free(r.ptr)
	r.release()
	if ret < 0 {
		return NewError("service_resolver_free", int(ret), strerror(ret))
	}
	return nil
}

func (r *serviceResolver) release() {
	if r.released {
		return
	}
	r.released = true
	r.ptr = nil
	r.handle.Delete()
	delete(r.client.resolvers, r)
}

// trackResolver records r as a child of c unless it was already released.
func (c *client) trackResolver(r *serviceResolver) bool {
	if r.released {
		return false
	}
	c.resolvers[r] = struct{}{}
	return true
}

func textOf(p *C.char) Text {
	if p == nil {
		return NullText()
	}
	return TextBytes(C.GoBytes(unsafe.Pointer(p), C.int(C.strlen(p))))
}

func addressOf(a *C.AvahiAddress) *Address {
	if a == nil {
		return nil
	}
	var (
		proto C.AvahiProtocol
		addr  Address
	)
	C.lan_address_copy(a, &proto, (*C.uint8_t)(unsafe.Pointer(&addr.Data[0])))
	addr.Proto = Protocol(proto)
	return &addr
}
