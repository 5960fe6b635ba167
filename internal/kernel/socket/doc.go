// Package socket implements stream sockets over pipe transport: unbound
// sockets, port-published listeners with a FIFO connection request queue,
// and peer pairs joined by one pipe per direction.
package socket
