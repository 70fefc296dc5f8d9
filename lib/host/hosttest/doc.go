/*
Package hosttest provides a reusable test harness that boots an embedded host,
loads modules into it and offers assertions on replies and on the host's
resource accounting.

Example usage:

	func TestMyModule(t *testing.T) {
		hs := hosttest.New(t, hosttest.Module{Name: "mymod", OnLoad: mymod.New().Load})

		r := hs.Do("MYMOD.CMD", "arg")
		hs.ExpectString(r, "OK")

		hs.AssertClean()
	}
*/
package hosttest
