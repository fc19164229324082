package chain

// feedbackABI is the fixed interface of the deployed Feedback contract. The
// method names, argument order and struct layouts are an external contract;
// they must not be changed here without a matching contract redeploy.
const feedbackABI = `[
  {"type":"function","name":"admin","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"transferAdmin","stateMutability":"nonpayable","inputs":[{"name":"newAdmin","type":"address"}],"outputs":[]},
  {"type":"function","name":"addStudent","stateMutability":"nonpayable","inputs":[{"name":"wallet","type":"address"},{"name":"name","type":"string"}],"outputs":[]},
  {"type":"function","name":"addTeacher","stateMutability":"nonpayable","inputs":[{"name":"teacherId","type":"string"},{"name":"name","type":"string"}],"outputs":[]},
  {"type":"function","name":"addCourse","stateMutability":"nonpayable","inputs":[{"name":"courseId","type":"uint256"},{"name":"courseName","type":"string"}],"outputs":[]},
  {"type":"function","name":"assignTeacherToCourse","stateMutability":"nonpayable","inputs":[{"name":"courseId","type":"uint256"},{"name":"teacherId","type":"string"}],"outputs":[]},
  {"type":"function","name":"submitFeedback","stateMutability":"nonpayable","inputs":[{"name":"student","type":"address"},{"name":"teacherId","type":"string"},{"name":"courseId","type":"uint256"},{"name":"ratings","type":"uint8[4]"},{"name":"comments","type":"string"}],"outputs":[]},
  {"type":"function","name":"students","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"wallet","type":"address"},{"name":"name","type":"string"},{"name":"isRegistered","type":"bool"}]},
  {"type":"function","name":"teachers","stateMutability":"view","inputs":[{"name":"","type":"string"}],"outputs":[{"name":"teacherId","type":"string"},{"name":"name","type":"string"},{"name":"isRegistered","type":"bool"}]},
  {"type":"function","name":"courses","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"courseId","type":"uint256"},{"name":"courseName","type":"string"},{"name":"exists","type":"bool"}]},
  {"type":"function","name":"courseTeacherList","stateMutability":"view","inputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"getAllCourseIds","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getAllFeedbacks","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"tuple[]","components":[{"name":"studentWallet","type":"address"},{"name":"facultyId","type":"string"},{"name":"courseId","type":"uint256"},{"name":"ratings","type":"uint8[4]"},{"name":"totalScore","type":"uint256"},{"name":"id","type":"uint256"},{"name":"comments","type":"string"},{"name":"timestamp","type":"uint256"}]}]},
  {"type":"function","name":"getTeacherCourseAverages","stateMutability":"view","inputs":[{"name":"teacherId","type":"string"},{"name":"courseId","type":"uint256"}],"outputs":[{"name":"","type":"uint256[4]"}]}
]`
