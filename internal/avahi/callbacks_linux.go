//go:build linux && cgo

package avahi

// #include <stdint.h>
// #include <avahi-client/client.h>
// #include <avahi-client/lookup.h>
import "C"

import (
	"runtime/cgo"
	"unsafe"
)

// Entry points for the client library. userdata is the cgo.Handle of
// the Go object the native one was created for; it stays valid until
// that object is freed.

//export landiscoveryClientCallback
func landiscoveryClientCallback(c *C.AvahiClient, state C.AvahiClientState, userdata unsafe.Pointer) {
	cl := cgo.Handle(uintptr(userdata)).Value().(*client)
	if cl.ptr == nil {
		// Called from inside avahi_client_new.
		cl.ptr = c
	}
	if cl.cb != nil {
		cl.cb(cl, ClientState(state))
	}
}

//export landiscoveryBrowseCallback
func landiscoveryBrowseCallback(b *C.AvahiServiceBrowser, iface C.AvahiIfIndex, proto C.AvahiProtocol,
	event C.AvahiBrowserEvent, name, serviceType, domain *C.char,
	flags C.AvahiLookupResultFlags, userdata unsafe.Pointer) {
	sb := cgo.Handle(uintptr(userdata)).Value().(*serviceBrowser)
	if sb.ptr == nil {
		sb.ptr = b
	}
	sb.cb(sb, &BrowseEvent{
		Interface: IfIndex(iface),
		Protocol:  Protocol(proto),
		Event:     BrowserEvent(event),
		Name:      textOf(name),
		Type:      textOf(serviceType),
		Domain:    textOf(domain),
		Flags:     LookupResultFlags(flags),
	})
}

//export landiscoveryResolveCallback
func landiscoveryResolveCallback(r *C.AvahiServiceResolver, iface C.AvahiIfIndex, proto C.AvahiProtocol,
	event C.AvahiResolverEvent, name, serviceType, domain, hostName *C.char,
	a *C.AvahiAddress, port C.uint16_t, txt *C.AvahiStringList,
	flags C.AvahiLookupResultFlags, userdata unsafe.Pointer) {
	sr := cgo.Handle(uintptr(userdata)).Value().(*serviceResolver)
	if sr.ptr == nil {
		sr.ptr = r
	}
	sr.cb(sr, &ResolveEvent{
		Interface: IfIndex(iface),
		Protocol:  Protocol(proto),
		Event:     ResolverEvent(event),
		Name:      textOf(name),
		Type:      textOf(serviceType),
		Domain:    textOf(domain),
		HostName:  textOf(hostName),
		Address:   addressOf(a),
		Port:      uint16(port),
		Flags:     LookupResultFlags(flags),
	})
}
